package execution

import (
	"math"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

// TradeStatus is the lifecycle state of a simulated trade.
type TradeStatus string

const (
	TradePending    TradeStatus = "PENDING"
	TradeOpen       TradeStatus = "OPEN"
	TradeTP1Hit     TradeStatus = "TP1_HIT"
	TradeTP2Hit     TradeStatus = "TP2_HIT"
	TradeStopped    TradeStatus = "STOPPED"
	TradeTimeExit   TradeStatus = "TIME_EXIT"
	TradeManual     TradeStatus = "MANUAL"
	TradeKilled     TradeStatus = "KILLED"
	TradeStructural TradeStatus = "STRUCTURAL"
)

// Terminal reports whether the trade is fully closed.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeTP2Hit, TradeStopped, TradeTimeExit, TradeManual, TradeKilled, TradeStructural:
		return true
	}
	return false
}

type tradeEvent int

const (
	eventFill tradeEvent = iota
	eventStop
	eventTP1
	eventTP2
	eventTime
	eventKill
	eventStructural
	eventManual
)

// transitionTrade enumerates every legal (status, event) pair. Anything not
// listed is rejected, so an illegal move can never corrupt a trade.
func transitionTrade(status TradeStatus, ev tradeEvent) (TradeStatus, bool) {
	switch status {
	case TradePending:
		switch ev {
		case eventFill:
			return TradeOpen, true
		case eventTime:
			return TradeTimeExit, true
		case eventKill:
			return TradeKilled, true
		case eventManual:
			return TradeManual, true
		}
	case TradeOpen:
		switch ev {
		case eventStop:
			return TradeStopped, true
		case eventTP1:
			return TradeTP1Hit, true
		case eventTime:
			return TradeTimeExit, true
		case eventKill:
			return TradeKilled, true
		case eventStructural:
			return TradeStructural, true
		case eventManual:
			return TradeManual, true
		}
	case TradeTP1Hit:
		switch ev {
		case eventStop:
			return TradeStopped, true
		case eventTP2:
			return TradeTP2Hit, true
		case eventTime:
			return TradeTimeExit, true
		case eventKill:
			return TradeKilled, true
		case eventStructural:
			return TradeStructural, true
		case eventManual:
			return TradeManual, true
		}
	}
	return status, false
}

// Trade is a simulated position. Size is notional quote currency; Remaining
// tracks the unclosed portion after partials. StopLoss moves to breakeven
// after TP1 while OrigStop keeps the entry stop for R:R accounting.
type Trade struct {
	ID          string      `json:"id"`
	SignalID    string      `json:"signal_id"`
	GapID       string      `json:"gap_id"`
	Side        signal.Side `json:"side"`
	Status      TradeStatus `json:"status"`
	Entry       float64     `json:"entry"` // planned entry, the gap CE
	FillPrice   float64     `json:"fill_price"`
	StopLoss    float64     `json:"stop_loss"`
	OrigStop    float64     `json:"orig_stop"`
	TP1         float64     `json:"tp1"`
	TP2         float64     `json:"tp2"`
	Size        float64     `json:"size"`
	Remaining   float64     `json:"remaining"`
	Leverage    float64     `json:"leverage"`
	Confidence  int         `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`
	FilledAt    *time.Time  `json:"filled_at,omitempty"`
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
	RealizedPnL float64     `json:"realized_pnl"`
	RRAchieved  float64     `json:"rr_achieved"`
}

// pnlOn computes the PnL of closing a notional portion at price.
func (t *Trade) pnlOn(portion, price float64) float64 {
	if t.FillPrice <= 0 || portion <= 0 {
		return 0
	}
	if t.Side == signal.Long {
		return portion * (price - t.FillPrice) / t.FillPrice
	}
	return portion * (t.FillPrice - price) / t.FillPrice
}

// finalize stamps closure and the achieved reward:risk measured against the
// original stop distance on full size.
func (t *Trade) finalize(now time.Time) {
	closed := now
	t.ClosedAt = &closed
	t.Remaining = 0

	if t.FillPrice <= 0 {
		return
	}
	riskAmount := t.Size * math.Abs(t.FillPrice-t.OrigStop) / t.FillPrice
	if riskAmount > 0 {
		t.RRAchieved = t.RealizedPnL / riskAmount
	}
}

// PostingKind tags a ledger entry emitted by trade monitoring.
type PostingKind string

const (
	PostingPartialClose PostingKind = "PARTIAL_CLOSE"
	PostingFinalClose   PostingKind = "FINAL_CLOSE"
)

// Posting is a realized-PnL ledger entry. Monitoring returns postings
// instead of mutating balances, so the caller owns the accounting.
type Posting struct {
	TradeID string      `json:"trade_id"`
	Kind    PostingKind `json:"kind"`
	Amount  float64     `json:"amount"` // realized PnL, signed
	Price   float64     `json:"price"`
	Size    float64     `json:"size"` // notional closed
	Time    time.Time   `json:"time"`
	Status  TradeStatus `json:"status"`
}
