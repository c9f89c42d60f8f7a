package analysis

import (
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// Trend classifies market structure direction.
type Trend string

const (
	TrendBullish    Trend = "BULLISH"
	TrendBearish    Trend = "BEARISH"
	TrendTransition Trend = "TRANSITION"
	TrendUndefined  Trend = "UNDEFINED"
)

// StructureEventType labels structural events in increasing confidence:
// BMS continues the trend, CHOCH warns of reversal, SMS confirms a reversal
// backed by displacement.
type StructureEventType string

const (
	EventNone  StructureEventType = "NONE"
	EventBMS   StructureEventType = "BMS"
	EventCHOCH StructureEventType = "CHOCH"
	EventSMS   StructureEventType = "SMS"
)

// StructureEvent is a structural break detected on the latest closed candle.
type StructureEvent struct {
	Type      StructureEventType `json:"type"`
	Direction Trend              `json:"direction"` // direction of the implied move
	Level     float64            `json:"level"`     // breached swing level
	Time      time.Time          `json:"time"`
	Timeframe market.Timeframe   `json:"timeframe"`
}

// StructureState is a full re-derivation of market structure from the current
// swing set. It is recomputed every cycle; only LastEvent is consumed
// downstream within the same cycle.
type StructureState struct {
	Trend          Trend          `json:"trend"`
	LastHigherHigh *Swing         `json:"last_higher_high,omitempty"`
	LastHigherLow  *Swing         `json:"last_higher_low,omitempty"`
	LastLowerHigh  *Swing         `json:"last_lower_high,omitempty"`
	LastLowerLow   *Swing         `json:"last_lower_low,omitempty"`
	CriticalSwing  *Swing         `json:"critical_swing,omitempty"`
	LastEvent      StructureEvent `json:"last_event"`
	SwingCount     int            `json:"swing_count"`
	LastSwingTime  time.Time      `json:"last_swing_time"`
}

// StructureAnalyzer derives trend state and structural events from swings.
type StructureAnalyzer struct {
	scorer      *DisplacementScorer
	smsLookback int
}

// NewStructureAnalyzer creates an analyzer. The displacement scorer gates
// CHOCH-to-SMS upgrades; smsLookback is the candle window scored (default 10).
func NewStructureAnalyzer(scorer *DisplacementScorer, smsLookback int) *StructureAnalyzer {
	if smsLookback <= 0 {
		smsLookback = 10
	}
	return &StructureAnalyzer{scorer: scorer, smsLookback: smsLookback}
}

// Analyze recomputes structure from the swing set. With fewer than two highs
// or two lows the trend is UNDEFINED.
func (a *StructureAnalyzer) Analyze(swings []Swing) StructureState {
	state := StructureState{Trend: TrendUndefined, SwingCount: len(swings)}
	if len(swings) > 0 {
		state.LastSwingTime = swings[len(swings)-1].Time
	}

	highs := swingsOfType(swings, SwingHigh)
	lows := swingsOfType(swings, SwingLow)
	if len(highs) < 2 || len(lows) < 2 {
		return state
	}

	// Classify each swing against the immediately preceding swing of the
	// same type, tracking the most recent of each class.
	for i := 1; i < len(highs); i++ {
		if highs[i].Price > highs[i-1].Price {
			state.LastHigherHigh = &highs[i]
		} else {
			state.LastLowerHigh = &highs[i]
		}
	}
	for i := 1; i < len(lows); i++ {
		if lows[i].Price > lows[i-1].Price {
			state.LastHigherLow = &lows[i]
		} else {
			state.LastLowerLow = &lows[i]
		}
	}

	lastHighHigher := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	lastLowHigher := lows[len(lows)-1].Price > lows[len(lows)-2].Price

	switch {
	case lastHighHigher && lastLowHigher:
		state.Trend = TrendBullish
	case !lastHighHigher && !lastLowHigher:
		state.Trend = TrendBearish
	default:
		state.Trend = TrendTransition
	}

	// The critical swing is the level whose breach signals a character
	// change: the last higher-low in an uptrend, the last lower-high in a
	// downtrend.
	switch state.Trend {
	case TrendBullish:
		state.CriticalSwing = state.LastHigherLow
	case TrendBearish:
		state.CriticalSwing = state.LastLowerHigh
	}

	return state
}

// DetectBMS inspects the latest closed candle for a structural break.
// Priority: a close beyond the critical swing against trend is a CHOCH; a
// close beyond the last extreme in the trend direction is a BMS; otherwise
// NONE.
func (a *StructureAnalyzer) DetectBMS(state StructureState, candle market.Candle) StructureEvent {
	none := StructureEvent{Type: EventNone, Time: candle.OpenTime, Timeframe: candle.Timeframe}

	switch state.Trend {
	case TrendBullish:
		if state.CriticalSwing != nil && candle.Close < state.CriticalSwing.Price {
			return StructureEvent{
				Type:      EventCHOCH,
				Direction: TrendBearish,
				Level:     state.CriticalSwing.Price,
				Time:      candle.OpenTime,
				Timeframe: candle.Timeframe,
			}
		}
		if state.LastHigherHigh != nil && candle.Close > state.LastHigherHigh.Price {
			return StructureEvent{
				Type:      EventBMS,
				Direction: TrendBullish,
				Level:     state.LastHigherHigh.Price,
				Time:      candle.OpenTime,
				Timeframe: candle.Timeframe,
			}
		}
	case TrendBearish:
		if state.CriticalSwing != nil && candle.Close > state.CriticalSwing.Price {
			return StructureEvent{
				Type:      EventCHOCH,
				Direction: TrendBullish,
				Level:     state.CriticalSwing.Price,
				Time:      candle.OpenTime,
				Timeframe: candle.Timeframe,
			}
		}
		if state.LastLowerLow != nil && candle.Close < state.LastLowerLow.Price {
			return StructureEvent{
				Type:      EventBMS,
				Direction: TrendBearish,
				Level:     state.LastLowerLow.Price,
				Time:      candle.OpenTime,
				Timeframe: candle.Timeframe,
			}
		}
	}
	return none
}

// DetectSMS upgrades a CHOCH to an SMS when the move that produced it shows
// sufficient displacement over the trailing lookback window. A CHOCH without
// displacement stays a CHOCH and is not an entry trigger.
func (a *StructureAnalyzer) DetectSMS(event StructureEvent, candles []market.Candle) StructureEvent {
	if event.Type != EventCHOCH || a.scorer == nil {
		return event
	}
	score := a.scorer.ScoreRecent(candles, a.smsLookback)
	if a.scorer.Qualifies(score) {
		event.Type = EventSMS
	}
	return event
}
