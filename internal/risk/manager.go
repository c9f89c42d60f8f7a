package risk

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Config holds risk management configuration. Percentages are fractions
// (0.15 = 15%). Zero values take defaults.
type Config struct {
	InitialBalance  float64 `json:"initial_balance"`
	Leverage        float64 `json:"leverage"`
	KillSwitchPct   float64 `json:"kill_switch_pct"` // drawdown from peak that halts trading
	WeeklyLossPct   float64 `json:"weekly_loss_pct"` // weekly loss cap, fraction of peak
	DailyLossPct    float64 `json:"daily_loss_pct"`  // daily loss cap, fraction of equity
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	MinRiskReward   float64 `json:"min_risk_reward"`
}

func (c *Config) applyDefaults() {
	if c.InitialBalance <= 0 {
		c.InitialBalance = 10000
	}
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.KillSwitchPct <= 0 {
		c.KillSwitchPct = 0.15
	}
	if c.WeeklyLossPct <= 0 {
		c.WeeklyLossPct = 0.05
	}
	if c.DailyLossPct <= 0 {
		c.DailyLossPct = 0.02
	}
	if c.MaxTradesPerDay <= 0 {
		c.MaxTradesPerDay = 1
	}
	if c.MinRiskReward <= 0 {
		c.MinRiskReward = 2
	}
}

// Manager gates signals behind drawdown circuit breakers and sizes positions
// by the consecutive-loss streak. Equity here is simulated paper equity.
type Manager struct {
	mu sync.RWMutex

	config Config

	peakEquity        float64
	currentEquity     float64
	dailyPnL          float64
	weeklyPnL         float64
	tradesToday       int
	consecutiveLosses int
	dayStart          time.Time
	weekStart         time.Time
}

func NewManager(config Config, now time.Time) *Manager {
	config.applyDefaults()
	return &Manager{
		config:        config,
		peakEquity:    config.InitialBalance,
		currentEquity: config.InitialBalance,
		dayStart:      dayOf(now),
		weekStart:     weekOf(now),
	}
}

// Snapshot is a point-in-time view of risk state for status queries.
type Snapshot struct {
	PeakEquity        float64 `json:"peak_equity"`
	CurrentEquity     float64 `json:"current_equity"`
	DrawdownPct       float64 `json:"drawdown_pct"`
	DailyPnL          float64 `json:"daily_pnl"`
	WeeklyPnL         float64 `json:"weekly_pnl"`
	TradesToday       int     `json:"trades_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	RiskPercent       float64 `json:"risk_percent"`
	KillSwitchActive  bool    `json:"kill_switch_active"`
}

// Allow runs the circuit-breaker gates in order against a signal's
// risk:reward. The first failing gate blocks with a reason; these are
// business outcomes, not errors.
func (m *Manager) Allow(riskReward float64, now time.Time) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollPeriods(now)

	if dd := m.drawdownPct(); dd >= m.config.KillSwitchPct {
		return false, fmt.Sprintf("kill switch active: drawdown %.1f%% from peak", dd*100)
	}
	if m.peakEquity > 0 && -m.weeklyPnL >= m.peakEquity*m.config.WeeklyLossPct {
		return false, fmt.Sprintf("weekly loss cap reached (%.2f)", m.weeklyPnL)
	}
	if m.currentEquity > 0 && -m.dailyPnL >= m.currentEquity*m.config.DailyLossPct {
		return false, fmt.Sprintf("daily loss cap reached (%.2f)", m.dailyPnL)
	}
	if m.tradesToday >= m.config.MaxTradesPerDay {
		return false, fmt.Sprintf("max trades per day reached (%d/%d)", m.tradesToday, m.config.MaxTradesPerDay)
	}
	if riskReward < m.config.MinRiskReward {
		return false, fmt.Sprintf("risk:reward %.2f below minimum %.2f", riskReward, m.config.MinRiskReward)
	}
	return true, ""
}

// KillSwitchActive reports the hard halt without consuming a trade slot.
// The exit strategy checks it every cycle to force-close open positions.
func (m *Manager) KillSwitchActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drawdownPct() >= m.config.KillSwitchPct
}

// RiskPercent selects the per-trade risk fraction from the loss streak:
// 1% clean, 0.5% after one loss, 0.25% after two or more.
func (m *Manager) RiskPercent() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return riskPercentFor(m.consecutiveLosses)
}

func riskPercentFor(losses int) float64 {
	switch {
	case losses <= 0:
		return 0.01
	case losses == 1:
		return 0.005
	default:
		return 0.0025
	}
}

// PositionSize returns the notional size in quote currency:
// riskAmount / stopDistancePct, levered, capped at balance x leverage.
func (m *Manager) PositionSize(entry, stop float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entry <= 0 || m.currentEquity <= 0 {
		return 0
	}
	stopDistPct := math.Abs(entry-stop) / entry
	if stopDistPct <= 0 {
		return 0
	}
	riskAmount := m.currentEquity * riskPercentFor(m.consecutiveLosses)
	size := riskAmount / stopDistPct * m.config.Leverage
	if maxSize := m.currentEquity * m.config.Leverage; size > maxSize {
		size = maxSize
	}
	return size
}

// RecordOpen consumes a trade slot for the day.
func (m *Manager) RecordOpen(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollPeriods(now)
	m.tradesToday++
}

// ApplyPosting books realized PnL into equity and the period counters.
// Partial closes flow through here as they happen; the loss streak only
// moves on the trade's final outcome.
func (m *Manager) ApplyPosting(pnl float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollPeriods(now)

	m.dailyPnL += pnl
	m.weeklyPnL += pnl
	m.currentEquity += pnl
	if m.currentEquity > m.peakEquity {
		m.peakEquity = m.currentEquity
	}
}

// RecordOutcome updates the consecutive-loss streak from a trade's total
// PnL: reset on a win, increment on a loss.
func (m *Manager) RecordOutcome(totalPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if totalPnL > 0 {
		m.consecutiveLosses = 0
	} else if totalPnL < 0 {
		m.consecutiveLosses++
	}
}

// RecordClosure books a trade's full PnL and its outcome in one step.
func (m *Manager) RecordClosure(pnl float64, now time.Time) {
	m.ApplyPosting(pnl, now)
	m.RecordOutcome(pnl)
}

// Restore rehydrates counters from a persisted snapshot, used on restart.
// Period counters roll forward normally from now.
func (m *Manager) Restore(snap Snapshot, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.PeakEquity > 0 {
		m.peakEquity = snap.PeakEquity
	}
	if snap.CurrentEquity > 0 {
		m.currentEquity = snap.CurrentEquity
	}
	m.dailyPnL = snap.DailyPnL
	m.weeklyPnL = snap.WeeklyPnL
	m.tradesToday = snap.TradesToday
	m.consecutiveLosses = snap.ConsecutiveLosses
	m.dayStart = dayOf(now)
	m.weekStart = weekOf(now)
}

// Leverage returns the configured leverage multiple.
func (m *Manager) Leverage() float64 {
	return m.config.Leverage
}

// Balance returns current simulated equity.
func (m *Manager) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentEquity
}

func (m *Manager) State() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		PeakEquity:        m.peakEquity,
		CurrentEquity:     m.currentEquity,
		DrawdownPct:       m.drawdownPct(),
		DailyPnL:          m.dailyPnL,
		WeeklyPnL:         m.weeklyPnL,
		TradesToday:       m.tradesToday,
		ConsecutiveLosses: m.consecutiveLosses,
		RiskPercent:       riskPercentFor(m.consecutiveLosses),
		KillSwitchActive:  m.drawdownPct() >= m.config.KillSwitchPct,
	}
}

func (m *Manager) drawdownPct() float64 {
	if m.peakEquity <= 0 {
		return 0
	}
	return (m.peakEquity - m.currentEquity) / m.peakEquity
}

// rollPeriods resets daily counters on a new day and weekly PnL on a new
// ISO week (Monday start). Callers hold the lock.
func (m *Manager) rollPeriods(now time.Time) {
	if d := dayOf(now); d.After(m.dayStart) {
		m.dailyPnL = 0
		m.tradesToday = 0
		m.dayStart = d
	}
	if w := weekOf(now); w.After(m.weekStart) {
		m.weeklyPnL = 0
		m.weekStart = w
	}
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func weekOf(t time.Time) time.Time {
	d := dayOf(t)
	// Back up to Monday.
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
