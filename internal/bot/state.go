package bot

import (
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bias"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

// Cache bounds. Enforcement happens on every write by truncation.
const (
	candleCap = 500
	swingCap  = 200
	sweepCap  = 10
)

// Cache is the scheduler-owned mutable state. Analysis calls receive
// snapshots or slices from it and hand results back; no component keeps a
// long-lived reference into it. Only the run loop writes.
type Cache struct {
	Series     map[market.Timeframe]*market.Series
	Swings     map[market.Timeframe][]analysis.Swing
	Structures map[market.Timeframe]analysis.StructureState
	Events     map[market.Timeframe]analysis.StructureEvent

	Levels []analysis.LiquidityLevel
	Gaps   []analysis.FairValueGap
	Sweeps []analysis.Sweep

	Bias     bias.DailyBias
	BiasDate time.Time
	Debounce signal.DebounceState

	DayOpenPrice float64
	SessionHigh  *float64
	SessionLow   *float64
	LastPrice    float64

	// LastBlockReason suppresses repeated signal-blocked events while the
	// same gate keeps failing.
	LastBlockReason string
}

func newCache(tfs []market.Timeframe) *Cache {
	c := &Cache{
		Series:     make(map[market.Timeframe]*market.Series, len(tfs)),
		Swings:     make(map[market.Timeframe][]analysis.Swing, len(tfs)),
		Structures: make(map[market.Timeframe]analysis.StructureState, len(tfs)),
		Events:     make(map[market.Timeframe]analysis.StructureEvent, len(tfs)),
		Debounce:   signal.NewDebounceState(),
	}
	for _, tf := range tfs {
		c.Series[tf] = market.NewSeries(tf, candleCap)
	}
	return c
}

// trackSession extends the rolling session extremes with a closed candle.
func (c *Cache) trackSession(candle market.Candle) {
	if c.SessionHigh == nil || candle.High > *c.SessionHigh {
		h := candle.High
		c.SessionHigh = &h
	}
	if c.SessionLow == nil || candle.Low < *c.SessionLow {
		l := candle.Low
		c.SessionLow = &l
	}
}

// resetDay clears per-day tracking at the daily rollover.
func (c *Cache) resetDay(dayOpenPrice float64) {
	c.SessionHigh = nil
	c.SessionLow = nil
	c.DayOpenPrice = dayOpenPrice
}

// seenSweep reports whether an equivalent sweep is already in the ring.
// Sweeps are identified by the swept level's price and the sweep candle time.
func (c *Cache) seenSweep(s analysis.Sweep) bool {
	for _, have := range c.Sweeps {
		if have.Level.Price == s.Level.Price && have.Time.Equal(s.Time) {
			return true
		}
	}
	return false
}
