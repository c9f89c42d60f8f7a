package execution

import (
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

// ExitAction is what the position manager should do with an open trade
// this cycle.
type ExitAction string

const (
	ExitNone       ExitAction = "NONE"
	ExitKill       ExitAction = "KILL"
	ExitStop       ExitAction = "STOP"
	ExitTP1        ExitAction = "TP1"
	ExitTP2        ExitAction = "TP2"
	ExitTime       ExitAction = "TIME"
	ExitStructural ExitAction = "STRUCTURAL"
)

// ExitDecision names the first exit rule that matched, with the price it
// should execute at.
type ExitDecision struct {
	Action ExitAction
	Price  float64
	Reason string
}

// ExitContext is the per-cycle environment an exit evaluation reads.
type ExitContext struct {
	Price      float64
	KillSwitch bool
	PastCutoff bool
	FastEvent  analysis.StructureEvent // latest event on the management timeframe
}

// ExitStrategy evaluates exit rules in strict priority order, first match
// wins: kill switch, stop, TP1, TP2, time cutoff, structural shift. The
// price-level rules mirror what the paper trader applies on candle data;
// the kill-switch, time, and structural overrides exist only here.
type ExitStrategy struct{}

func NewExitStrategy() *ExitStrategy {
	return &ExitStrategy{}
}

func (e *ExitStrategy) Evaluate(t *Trade, ctx ExitContext) ExitDecision {
	if t == nil || t.Status.Terminal() {
		return ExitDecision{Action: ExitNone}
	}

	if ctx.KillSwitch {
		return ExitDecision{Action: ExitKill, Price: ctx.Price, Reason: "kill switch active"}
	}

	filled := t.Status == TradeOpen || t.Status == TradeTP1Hit
	if filled {
		if hitAgainst(t, ctx.Price, t.StopLoss) {
			return ExitDecision{Action: ExitStop, Price: t.StopLoss, Reason: "stop loss hit"}
		}
		if t.Status == TradeOpen && hitToward(t, ctx.Price, t.TP1) {
			return ExitDecision{Action: ExitTP1, Price: t.TP1, Reason: "first target reached"}
		}
		if t.Status == TradeTP1Hit && hitToward(t, ctx.Price, t.TP2) {
			return ExitDecision{Action: ExitTP2, Price: t.TP2, Reason: "second target reached"}
		}
	}

	if ctx.PastCutoff {
		return ExitDecision{Action: ExitTime, Price: ctx.Price, Reason: "session time cutoff"}
	}

	if filled && againstTrade(t.Side, ctx.FastEvent) {
		return ExitDecision{
			Action: ExitStructural,
			Price:  ctx.Price,
			Reason: "structure shifted against position",
		}
	}

	return ExitDecision{Action: ExitNone}
}

// againstTrade reports whether a structural event implies a move opposing
// the trade. Only confirmed shifts and change-of-character events count.
func againstTrade(side signal.Side, ev analysis.StructureEvent) bool {
	if ev.Type != analysis.EventSMS && ev.Type != analysis.EventCHOCH {
		return false
	}
	if side == signal.Long {
		return ev.Direction == analysis.TrendBearish
	}
	return ev.Direction == analysis.TrendBullish
}

func hitAgainst(t *Trade, price, level float64) bool {
	if t.Side == signal.Long {
		return price <= level
	}
	return price >= level
}

func hitToward(t *Trade, price, level float64) bool {
	if t.Side == signal.Long {
		return price >= level
	}
	return price <= level
}
