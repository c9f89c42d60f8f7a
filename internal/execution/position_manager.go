package execution

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

// Notifier is the alerting surface the position manager uses. Sends are
// best-effort; failures never affect trade state.
type Notifier interface {
	SendSignal(symbol, side, reason string, price, stopLoss, takeProfit float64) error
	SendTradeOpen(symbol, side string, price, quantity float64) error
	SendTradeClose(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) error
}

const recentTradesCap = 50

// PositionManager enforces the single-position policy and runs the
// risk check, simulated open, per-cycle monitoring, and closure accounting.
type PositionManager struct {
	symbol   string
	riskMgr  *risk.Manager
	trader   *PaperTrader
	exits    *ExitStrategy
	notifier Notifier
	logger   zerolog.Logger

	current *Trade
	recent  []Trade
}

func NewPositionManager(symbol string, riskMgr *risk.Manager, trader *PaperTrader, exits *ExitStrategy, notifier Notifier, logger zerolog.Logger) *PositionManager {
	return &PositionManager{
		symbol:   symbol,
		riskMgr:  riskMgr,
		trader:   trader,
		exits:    exits,
		notifier: notifier,
		logger:   logger.With().Str("component", "position_manager").Logger(),
	}
}

// HandleSignal runs the risk gates and opens a pending paper trade. The
// returned reason names the block when no trade opens.
func (pm *PositionManager) HandleSignal(sig *signal.Signal, now time.Time) (*Trade, string) {
	if pm.current != nil && !pm.current.Status.Terminal() {
		return nil, "position already open"
	}

	if ok, reason := pm.riskMgr.Allow(sig.RiskReward, now); !ok {
		pm.logger.Info().Str("signal_id", sig.ID).Str("reason", reason).Msg("signal blocked by risk")
		return nil, reason
	}

	size := pm.riskMgr.PositionSize(sig.Entry, sig.StopLoss)
	if size <= 0 {
		return nil, "position size computed to zero"
	}

	t := pm.trader.OpenFromSignal(sig, size, pm.riskMgr.Leverage(), now)
	pm.current = t
	pm.riskMgr.RecordOpen(now)

	if pm.notifier != nil {
		_ = pm.notifier.SendSignal(pm.symbol, string(sig.Side), "setup confirmed", sig.Entry, sig.StopLoss, sig.TP2)
	}
	return t, ""
}

// OnCandle advances the open trade against a closed execution candle:
// exit overrides first, then fills and price targets. Postings are booked
// into risk state as they are emitted.
func (pm *PositionManager) OnCandle(c market.Candle, ctx ExitContext, now time.Time) []Posting {
	t := pm.current
	if t == nil || t.Status.Terminal() {
		return nil
	}

	wasPending := t.Status == TradePending

	var postings []Posting
	switch decision := pm.exits.Evaluate(t, ctx); decision.Action {
	case ExitKill:
		postings = pm.trader.CloseKill(t, ctx.Price, now)
	case ExitTime:
		postings = pm.trader.CloseTime(t, ctx.Price, now)
	case ExitStructural:
		postings = pm.trader.CloseStructural(t, ctx.Price, now)
	default:
		// Stop and target rules run off candle extremes inside Monitor.
		postings = pm.trader.Monitor(t, c, now)
	}

	if wasPending && t.Status == TradeOpen && pm.notifier != nil {
		_ = pm.notifier.SendTradeOpen(pm.symbol, string(t.Side), t.FillPrice, t.Size)
	}

	pm.settle(t, postings, now)
	return postings
}

// ForceCloseAll closes any live position at the given price. Used on
// operator request and on graceful shutdown.
func (pm *PositionManager) ForceCloseAll(price float64, now time.Time) []Posting {
	t := pm.current
	if t == nil || t.Status.Terminal() {
		return nil
	}
	postings := pm.trader.CloseManual(t, price, now)
	pm.settle(t, postings, now)
	return postings
}

// Adopt installs a previously persisted live trade, used on restart. A
// terminal or nil trade is ignored.
func (pm *PositionManager) Adopt(t *Trade) {
	if t == nil || t.Status.Terminal() {
		return
	}
	pm.current = t
	pm.logger.Info().Str("trade_id", t.ID).Str("status", string(t.Status)).Msg("adopted persisted trade")
}

// Seed preloads the closed-trade history, most recent last.
func (pm *PositionManager) Seed(trades []Trade) {
	pm.recent = append(pm.recent[:0], trades...)
	if len(pm.recent) > recentTradesCap {
		pm.recent = pm.recent[len(pm.recent)-recentTradesCap:]
	}
}

// Current returns the live trade, or nil when flat.
func (pm *PositionManager) Current() *Trade {
	if pm.current == nil || pm.current.Status.Terminal() {
		return nil
	}
	return pm.current
}

// Recent returns closed trades, most recent last.
func (pm *PositionManager) Recent() []Trade {
	out := make([]Trade, len(pm.recent))
	copy(out, pm.recent)
	return out
}

func (pm *PositionManager) settle(t *Trade, postings []Posting, now time.Time) {
	final := false
	for _, p := range postings {
		pm.riskMgr.ApplyPosting(p.Amount, p.Time)
		if p.Kind == PostingFinalClose {
			final = true
		}
	}
	if !final && !t.Status.Terminal() {
		return
	}

	// Cancelled pendings emit no postings but still retire the slot.
	if t.FilledAt != nil {
		pm.riskMgr.RecordOutcome(t.RealizedPnL)
	}
	pm.archive(*t)
	pm.current = nil

	if t.FilledAt != nil && pm.notifier != nil {
		pnlPct := 0.0
		if t.Size > 0 {
			pnlPct = t.RealizedPnL / t.Size * 100
		}
		_ = pm.notifier.SendTradeClose(pm.symbol, t.FillPrice, lastPrice(postings, t), t.RealizedPnL, pnlPct, string(t.Status))
	}
}

func (pm *PositionManager) archive(t Trade) {
	pm.recent = append(pm.recent, t)
	if len(pm.recent) > recentTradesCap {
		pm.recent = pm.recent[len(pm.recent)-recentTradesCap:]
	}
}

func lastPrice(postings []Posting, t *Trade) float64 {
	if len(postings) > 0 {
		return postings[len(postings)-1].Price
	}
	return t.FillPrice
}
