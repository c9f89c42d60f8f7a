package analysis

import (
	"fmt"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// GapType represents the direction of a Fair Value Gap.
type GapType string

const (
	BullishGap GapType = "BULLISH"
	BearishGap GapType = "BEARISH"
)

// GapQuality grades a gap by the conviction of the move that created it.
type GapQuality string

const (
	GapQualityHigh   GapQuality = "HIGH"
	GapQualityMedium GapQuality = "MEDIUM"
	GapQualityLow    GapQuality = "LOW"
)

// GapState is the fill-progress state of a gap.
type GapState string

const (
	GapOpen            GapState = "OPEN"
	GapPartiallyFilled GapState = "PARTIALLY_FILLED"
	GapCETouched       GapState = "CE_TOUCHED"
	GapFilled          GapState = "FILLED"
	GapViolated        GapState = "VIOLATED"
)

// Terminal reports whether the state admits no further transitions.
func (s GapState) Terminal() bool {
	return s == GapFilled || s == GapViolated
}

// gapMaxAge is how long an unfilled gap stays tracked.
const gapMaxAge = 24 * time.Hour

// FairValueGap is a 3-candle price imbalance. Identity is deterministic from
// (time, timeframe, type, top, bottom), so re-detection deduplicates.
type FairValueGap struct {
	ID        string           `json:"id"`
	Time      time.Time        `json:"time"`
	Timeframe market.Timeframe `json:"timeframe"`
	Type      GapType          `json:"type"`
	Top       float64          `json:"top"`
	Bottom    float64          `json:"bottom"`
	CE        float64          `json:"ce"`
	Quality   GapQuality       `json:"quality"`
	State     GapState         `json:"state"`
}

func gapID(t time.Time, tf market.Timeframe, typ GapType, top, bottom float64) string {
	return fmt.Sprintf("%d_%s_%s_%.8f_%.8f", t.Unix(), tf, typ, top, bottom)
}

// FVGDetector detects Fair Value Gaps in candle sequences.
type FVGDetector struct {
	scorer *DisplacementScorer
}

// NewFVGDetector creates a detector. The displacement scorer is used for
// quality grading; nil disables the displacement component of quality.
func NewFVGDetector(scorer *DisplacementScorer) *FVGDetector {
	return &FVGDetector{scorer: scorer}
}

// Detect scans candles in 3-candle windows (prev, curr, next). A bullish gap
// forms when next.Low > prev.High; bearish when next.High < prev.Low. The
// middle candle is the impulse candle.
func (d *FVGDetector) Detect(candles []market.Candle) []FairValueGap {
	if len(candles) < 3 {
		return nil
	}

	var gaps []FairValueGap
	for i := 0; i+2 < len(candles); i++ {
		prev, curr, next := candles[i], candles[i+1], candles[i+2]

		if next.Low > prev.High {
			g := FairValueGap{
				Time:      curr.OpenTime,
				Timeframe: curr.Timeframe,
				Type:      BullishGap,
				Top:       next.Low,
				Bottom:    prev.High,
				State:     GapOpen,
			}
			g.CE = (g.Top + g.Bottom) / 2
			g.ID = gapID(g.Time, g.Timeframe, g.Type, g.Top, g.Bottom)
			g.Quality = d.grade(candles, i, curr)
			gaps = append(gaps, g)
		}

		if next.High < prev.Low {
			g := FairValueGap{
				Time:      curr.OpenTime,
				Timeframe: curr.Timeframe,
				Type:      BearishGap,
				Top:       prev.Low,
				Bottom:    next.High,
				State:     GapOpen,
			}
			g.CE = (g.Top + g.Bottom) / 2
			g.ID = gapID(g.Time, g.Timeframe, g.Type, g.Top, g.Bottom)
			g.Quality = d.grade(candles, i, curr)
			gaps = append(gaps, g)
		}
	}
	return gaps
}

// grade assigns quality: HIGH when the gap forms during qualifying
// displacement and the impulse candle body ratio exceeds 0.7, MEDIUM when
// either condition holds, LOW otherwise.
func (d *FVGDetector) grade(candles []market.Candle, windowStart int, impulse market.Candle) GapQuality {
	strongBody := impulse.BodyRatio() > 0.7

	inDisplacement := false
	if d.scorer != nil {
		score := d.scorer.Score(candles, windowStart, windowStart+2)
		inDisplacement = d.scorer.Qualifies(score)
	}

	switch {
	case inDisplacement && strongBody:
		return GapQualityHigh
	case inDisplacement || strongBody:
		return GapQualityMedium
	default:
		return GapQualityLow
	}
}

// gapEvent captures how a candle interacted with a gap.
type gapEvent int

const (
	gapEventNone gapEvent = iota
	gapEventWickIn
	gapEventWickCE
	gapEventWickThrough
	gapEventAdverseClose
)

// classifyGapCandle derives the strongest event a candle produced on a gap.
func classifyGapCandle(g FairValueGap, c market.Candle) gapEvent {
	switch g.Type {
	case BullishGap:
		// Filled from above by a downward retracement.
		if c.Close < g.Bottom {
			return gapEventAdverseClose
		}
		switch {
		case c.Low <= g.Bottom:
			return gapEventWickThrough
		case c.Low <= g.CE:
			return gapEventWickCE
		case c.Low < g.Top:
			return gapEventWickIn
		}
	case BearishGap:
		if c.Close > g.Top {
			return gapEventAdverseClose
		}
		switch {
		case c.High >= g.Top:
			return gapEventWickThrough
		case c.High >= g.CE:
			return gapEventWickCE
		case c.High > g.Bottom:
			return gapEventWickIn
		}
	}
	return gapEventNone
}

// transitionGap is the single legal (state, event) -> state mapping for gaps.
// Unknown pairs leave the state untouched; terminal states never move.
func transitionGap(state GapState, ev gapEvent) GapState {
	if state.Terminal() {
		return state
	}
	if ev == gapEventAdverseClose {
		return GapViolated
	}
	switch state {
	case GapOpen:
		switch ev {
		case gapEventWickIn:
			return GapPartiallyFilled
		case gapEventWickCE:
			return GapCETouched
		case gapEventWickThrough:
			return GapFilled
		}
	case GapPartiallyFilled:
		switch ev {
		case gapEventWickCE:
			return GapCETouched
		case gapEventWickThrough:
			return GapFilled
		}
	case GapCETouched:
		if ev == gapEventWickThrough {
			return GapFilled
		}
	}
	return state
}

// UpdateGapStates advances each gap's state against candles formed after the
// gap. Terminal gaps are skipped.
func UpdateGapStates(gaps []FairValueGap, candles []market.Candle) {
	for i := range gaps {
		g := &gaps[i]
		if g.State.Terminal() {
			continue
		}
		for _, c := range candles {
			if !c.OpenTime.After(g.Time) {
				continue
			}
			g.State = transitionGap(g.State, classifyGapCandle(*g, c))
			if g.State.Terminal() {
				break
			}
		}
	}
}

// MergeGaps merges newly detected gaps into the known set, deduplicating by
// deterministic ID and keeping the known copy's state.
func MergeGaps(known, fresh []FairValueGap) []FairValueGap {
	seen := make(map[string]bool, len(known))
	for _, g := range known {
		seen[g.ID] = true
	}
	out := known
	for _, g := range fresh {
		if !seen[g.ID] {
			seen[g.ID] = true
			out = append(out, g)
		}
	}
	return out
}

// PruneGaps drops gaps that reached a terminal state or aged past 24 hours.
func PruneGaps(gaps []FairValueGap, now time.Time) []FairValueGap {
	out := gaps[:0]
	for _, g := range gaps {
		if g.State.Terminal() {
			continue
		}
		if now.Sub(g.Time) > gapMaxAge {
			continue
		}
		out = append(out, g)
	}
	return out
}

// SelectEntryGap picks the entry gap for a desired direction: matching type,
// state OPEN or PARTIALLY_FILLED, quality HIGH or MEDIUM, most recent first.
func SelectEntryGap(gaps []FairValueGap, typ GapType) *FairValueGap {
	var best *FairValueGap
	for i := range gaps {
		g := &gaps[i]
		if g.Type != typ {
			continue
		}
		if g.State != GapOpen && g.State != GapPartiallyFilled {
			continue
		}
		if g.Quality != GapQualityHigh && g.Quality != GapQualityMedium {
			continue
		}
		if best == nil || g.Time.After(best.Time) {
			best = g
		}
	}
	return best
}
