package bot

import (
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bias"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/execution"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
)

// Status is a point-in-time view of the bot for status queries.
type Status struct {
	Symbol     string           `json:"symbol"`
	LastPrice  float64          `json:"last_price"`
	BiasDate   time.Time        `json:"bias_date"`
	Bias       bias.DailyBias   `json:"bias"`
	Risk       risk.Snapshot    `json:"risk"`
	OpenTrade  *execution.Trade `json:"open_trade,omitempty"`
	SweepCount int              `json:"sweep_count"`
	GapCount   int              `json:"gap_count"`
	LevelCount int              `json:"level_count"`
}

// Symbol returns the configured instrument.
func (b *Bot) Symbol() string { return b.symbol }

// Status snapshots the bot state.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	var open *execution.Trade
	if t := b.positions.Current(); t != nil {
		cp := *t
		open = &cp
	}
	return Status{
		Symbol:     b.symbol,
		LastPrice:  b.cache.LastPrice,
		BiasDate:   b.cache.BiasDate,
		Bias:       b.cache.Bias,
		Risk:       b.riskMgr.State(),
		OpenTrade:  open,
		SweepCount: len(b.cache.Sweeps),
		GapCount:   len(b.cache.Gaps),
		LevelCount: len(b.cache.Levels),
	}
}

// Bias returns the current daily bias.
func (b *Bot) Bias() bias.DailyBias {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Bias
}

// Levels returns a copy of the mapped liquidity levels.
func (b *Bot) Levels() []analysis.LiquidityLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]analysis.LiquidityLevel, len(b.cache.Levels))
	copy(out, b.cache.Levels)
	return out
}

// Gaps returns a copy of the tracked fair value gaps.
func (b *Bot) Gaps() []analysis.FairValueGap {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]analysis.FairValueGap, len(b.cache.Gaps))
	copy(out, b.cache.Gaps)
	return out
}

// Sweeps returns a copy of the recent sweep ring.
func (b *Bot) Sweeps() []analysis.Sweep {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]analysis.Sweep, len(b.cache.Sweeps))
	copy(out, b.cache.Sweeps)
	return out
}

// Trades returns closed trades, most recent last.
func (b *Bot) Trades() []execution.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions.Recent()
}

// RiskState returns the risk counters.
func (b *Bot) RiskState() risk.Snapshot {
	return b.riskMgr.State()
}

// CloseOpenTrade force-closes the live position at the last known price.
// Returns false when flat.
func (b *Bot) CloseOpenTrade() bool {
	now := b.nowFn()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.positions.Current() == nil {
		return false
	}
	postings := b.positions.ForceCloseAll(b.cache.LastPrice, now)
	b.settlePostings(postings)
	b.persist(now)
	return true
}
