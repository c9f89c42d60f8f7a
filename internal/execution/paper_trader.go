package execution

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

// PaperTraderConfig tunes simulated fills. Zero values take defaults.
type PaperTraderConfig struct {
	SlippagePct  float64 // adverse slippage applied on fill
	BreakevenPct float64 // stop offset past entry after TP1
}

// PaperTrader owns the simulated trade lifecycle: pending fills, partial
// take-profits, stops. It never touches a balance; realized PnL leaves as
// ledger postings for the position manager to apply.
type PaperTrader struct {
	slippagePct  float64
	breakevenPct float64
	logger       zerolog.Logger
}

func NewPaperTrader(cfg PaperTraderConfig, logger zerolog.Logger) *PaperTrader {
	if cfg.SlippagePct <= 0 {
		cfg.SlippagePct = 0.0005
	}
	if cfg.BreakevenPct <= 0 {
		cfg.BreakevenPct = 0.0005
	}
	return &PaperTrader{
		slippagePct:  cfg.SlippagePct,
		breakevenPct: cfg.BreakevenPct,
		logger:       logger.With().Str("component", "paper_trader").Logger(),
	}
}

// OpenFromSignal creates a PENDING trade awaiting a retracement into the
// entry gap.
func (p *PaperTrader) OpenFromSignal(sig *signal.Signal, size, leverage float64, now time.Time) *Trade {
	t := &Trade{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		GapID:      sig.GapID,
		Side:       sig.Side,
		Status:     TradePending,
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		OrigStop:   sig.StopLoss,
		TP1:        sig.TP1,
		TP2:        sig.TP2,
		Size:       size,
		Remaining:  size,
		Leverage:   leverage,
		Confidence: sig.Confidence,
		CreatedAt:  now,
	}
	p.logger.Info().
		Str("trade_id", t.ID).
		Str("side", string(t.Side)).
		Float64("entry", t.Entry).
		Float64("stop", t.StopLoss).
		Float64("size", size).
		Msg("pending trade created")
	return t
}

// Monitor advances the trade against one closed candle. Order matters:
// a pending trade can fill, an open trade checks stop before targets, and
// TP2 is only reachable after TP1. Returned postings carry realized PnL.
func (p *PaperTrader) Monitor(t *Trade, c market.Candle, now time.Time) []Posting {
	if t == nil || t.Status.Terminal() {
		return nil
	}

	if t.Status == TradePending {
		p.tryFill(t, c, now)
		if t.Status != TradeOpen {
			return nil
		}
	}

	var postings []Posting
	if p.stopHit(t, c) {
		return p.closeRemaining(t, t.StopLoss, eventStop, now)
	}
	if t.Status == TradeOpen && p.targetHit(t, c, t.TP1) {
		postings = append(postings, p.takePartial(t, now)...)
	}
	if t.Status == TradeTP1Hit && p.targetHit(t, c, t.TP2) {
		postings = append(postings, p.closeRemaining(t, t.TP2, eventTP2, now)...)
	}
	return postings
}

// ForceClose closes whatever remains at price with the given terminal event.
// Used for time cutoff, structural exits, the kill switch, and shutdown.
func (p *PaperTrader) ForceClose(t *Trade, price float64, ev tradeEvent, now time.Time) []Posting {
	if t == nil || t.Status.Terminal() {
		return nil
	}
	if t.Status == TradePending {
		// Nothing filled, nothing to realize.
		next, ok := transitionTrade(t.Status, ev)
		if !ok {
			return nil
		}
		t.Status = next
		t.finalize(now)
		p.logger.Info().Str("trade_id", t.ID).Str("status", string(next)).Msg("pending trade cancelled")
		return nil
	}
	return p.closeRemaining(t, price, ev, now)
}

// CloseTime force-closes for the daily time cutoff.
func (p *PaperTrader) CloseTime(t *Trade, price float64, now time.Time) []Posting {
	return p.ForceClose(t, price, eventTime, now)
}

// CloseKill force-closes for the equity kill switch.
func (p *PaperTrader) CloseKill(t *Trade, price float64, now time.Time) []Posting {
	return p.ForceClose(t, price, eventKill, now)
}

// CloseStructural force-closes on an adverse structure shift.
func (p *PaperTrader) CloseStructural(t *Trade, price float64, now time.Time) []Posting {
	return p.ForceClose(t, price, eventStructural, now)
}

// CloseManual force-closes on operator request or shutdown.
func (p *PaperTrader) CloseManual(t *Trade, price float64, now time.Time) []Posting {
	return p.ForceClose(t, price, eventManual, now)
}

func (p *PaperTrader) tryFill(t *Trade, c market.Candle, now time.Time) {
	retraced := false
	if t.Side == signal.Long {
		retraced = c.Low <= t.Entry
	} else {
		retraced = c.High >= t.Entry
	}
	if !retraced {
		return
	}
	next, ok := transitionTrade(t.Status, eventFill)
	if !ok {
		return
	}
	t.Status = next
	if t.Side == signal.Long {
		t.FillPrice = t.Entry * (1 + p.slippagePct)
	} else {
		t.FillPrice = t.Entry * (1 - p.slippagePct)
	}
	filled := now
	t.FilledAt = &filled
	p.logger.Info().
		Str("trade_id", t.ID).
		Float64("fill_price", t.FillPrice).
		Msg("pending trade filled")
}

func (p *PaperTrader) stopHit(t *Trade, c market.Candle) bool {
	if t.Side == signal.Long {
		return c.Low <= t.StopLoss
	}
	return c.High >= t.StopLoss
}

func (p *PaperTrader) targetHit(t *Trade, c market.Candle, target float64) bool {
	if t.Side == signal.Long {
		return c.High >= target
	}
	return c.Low <= target
}

// takePartial realizes half the original size at TP1 and moves the stop to
// breakeven, slightly in the trade's favor.
func (p *PaperTrader) takePartial(t *Trade, now time.Time) []Posting {
	next, ok := transitionTrade(t.Status, eventTP1)
	if !ok {
		return nil
	}
	t.Status = next

	portion := t.Size / 2
	pnl := t.pnlOn(portion, t.TP1)
	t.Remaining -= portion
	t.RealizedPnL += pnl

	if t.Side == signal.Long {
		t.StopLoss = t.FillPrice * (1 + p.breakevenPct)
	} else {
		t.StopLoss = t.FillPrice * (1 - p.breakevenPct)
	}

	p.logger.Info().
		Str("trade_id", t.ID).
		Float64("pnl", pnl).
		Float64("new_stop", t.StopLoss).
		Msg("tp1 partial close, stop to breakeven")

	return []Posting{{
		TradeID: t.ID,
		Kind:    PostingPartialClose,
		Amount:  pnl,
		Price:   t.TP1,
		Size:    portion,
		Time:    now,
		Status:  t.Status,
	}}
}

func (p *PaperTrader) closeRemaining(t *Trade, price float64, ev tradeEvent, now time.Time) []Posting {
	next, ok := transitionTrade(t.Status, ev)
	if !ok {
		return nil
	}
	portion := t.Remaining
	pnl := t.pnlOn(portion, price)
	t.Status = next
	t.RealizedPnL += pnl
	t.finalize(now)

	p.logger.Info().
		Str("trade_id", t.ID).
		Str("status", string(next)).
		Float64("pnl", pnl).
		Float64("total_pnl", t.RealizedPnL).
		Float64("rr_achieved", t.RRAchieved).
		Msg("trade closed")

	return []Posting{{
		TradeID: t.ID,
		Kind:    PostingFinalClose,
		Amount:  pnl,
		Price:   price,
		Size:    portion,
		Time:    now,
		Status:  t.Status,
	}}
}
