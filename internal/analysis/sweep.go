package analysis

import (
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// SweepConfirmation distinguishes same-candle reclaims from delayed ones.
type SweepConfirmation string

const (
	SweepImmediate SweepConfirmation = "IMMEDIATE"
	SweepDelayed   SweepConfirmation = "DELAYED"
)

// Sweep records a liquidity grab: a wick through a level followed by a close
// back on the correct side. Sweeps are immutable once created.
type Sweep struct {
	Time         time.Time         `json:"time"`
	Level        LiquidityLevel    `json:"level"`
	Confirmation SweepConfirmation `json:"confirmation"`
	Delay        int               `json:"delay"` // candles until the reclaiming close
	Score        int               `json:"score"` // 0-10
	Extreme      float64           `json:"extreme"`
}

// Direction returns the gap type a trade off this sweep would target: a swept
// low-side level implies a bullish reversal, a swept high-side level bearish.
func (s Sweep) Direction() GapType {
	if s.Level.Type.HighSide() {
		return BearishGap
	}
	return BullishGap
}

// SweepDetector scans active levels for wick-and-reclaim sweeps.
type SweepDetector struct {
	lookforward    int
	maxPenetration float64
	minTrigger     int
}

// NewSweepDetector creates a detector. Zero or negative inputs fall back to a
// 5-candle reclaim window and trigger threshold 5. Penetration beyond 1% of
// the level is rejected as a breakout rather than a sweep.
func NewSweepDetector(lookforward, minTrigger int) *SweepDetector {
	if lookforward <= 0 {
		lookforward = 5
	}
	if minTrigger <= 0 {
		minTrigger = 5
	}
	return &SweepDetector{
		lookforward:    lookforward,
		maxPenetration: 0.01,
		minTrigger:     minTrigger,
	}
}

// MinTrigger returns the score a sweep needs to qualify downstream.
func (d *SweepDetector) MinTrigger() int {
	return d.minTrigger
}

// Detect scans recent candles against each ACTIVE level and returns the
// sweeps found, at most one per level. Candidates scoring 0 are discarded.
func (d *SweepDetector) Detect(levels []LiquidityLevel, candles []market.Candle) []Sweep {
	if len(candles) == 0 {
		return nil
	}

	var sweeps []Sweep
	for _, level := range levels {
		if level.State != LevelActive {
			continue
		}
		if s, ok := d.detectLevel(level, candles); ok {
			sweeps = append(sweeps, s)
		}
	}
	return sweeps
}

// detectLevel finds the first valid sweep of a level within the candle window.
func (d *SweepDetector) detectLevel(level LiquidityLevel, candles []market.Candle) (Sweep, bool) {
	highSide := level.Type.HighSide()

	for i, c := range candles {
		if !c.OpenTime.After(level.CreatedAt) {
			continue
		}

		var extreme, penetration float64
		if highSide {
			if c.High <= level.Price {
				continue
			}
			extreme = c.High
			penetration = (c.High - level.Price) / level.Price
		} else {
			if c.Low >= level.Price {
				continue
			}
			extreme = c.Low
			penetration = (level.Price - c.Low) / level.Price
		}

		// Too deep to be a sweep; more likely a breakout.
		if penetration > d.maxPenetration {
			return Sweep{}, false
		}

		delay, reversal, ok := d.findReclaim(level, candles, i, highSide)
		if !ok {
			continue
		}

		s := Sweep{
			Time:         c.OpenTime,
			Level:        level,
			Confirmation: SweepImmediate,
			Delay:        delay,
			Extreme:      extreme,
		}
		if delay > 0 {
			s.Confirmation = SweepDelayed
		}
		s.Score = d.score(penetration, delay, reversal, level)
		if s.Score == 0 {
			return Sweep{}, false
		}
		return s, true
	}
	return Sweep{}, false
}

// findReclaim locates the candle closing back on the correct side of the
// level, starting with the sweep candle itself.
func (d *SweepDetector) findReclaim(level LiquidityLevel, candles []market.Candle, sweepIdx int, highSide bool) (int, market.Candle, bool) {
	limit := sweepIdx + d.lookforward
	if limit >= len(candles) {
		limit = len(candles) - 1
	}
	for j := sweepIdx; j <= limit; j++ {
		c := candles[j]
		reclaimed := false
		if highSide {
			reclaimed = c.Close < level.Price
		} else {
			reclaimed = c.Close > level.Price
		}
		if reclaimed {
			return j - sweepIdx, c, true
		}
	}
	return 0, market.Candle{}, false
}

// score applies the 0-10 sweep scoring model: shallow penetration, fast
// reclaim, convicted reversal candle and level quality.
func (d *SweepDetector) score(penetration float64, delay int, reversal market.Candle, level LiquidityLevel) int {
	score := 0

	switch {
	case penetration <= 0.001:
		score += 3
	case penetration <= 0.002:
		score += 2
	case penetration <= 0.005:
		score += 1
	}

	switch {
	case delay == 0:
		score += 3
	case delay == 1:
		score += 2
	case delay <= 3:
		score += 1
	}

	br := reversal.BodyRatio()
	switch {
	case br >= 0.6:
		score += 2
	case br >= 0.4:
		score += 1
	}

	switch {
	case level.Score >= 8:
		score += 2
	case level.Score >= 5:
		score += 1
	}

	if score > 10 {
		score = 10
	}
	return score
}

// Qualifies reports whether a sweep meets the trigger threshold.
func (d *SweepDetector) Qualifies(s Sweep) bool {
	return s.Score >= d.minTrigger
}

// AppendSweep appends to a bounded most-recent-last ring of sweeps.
func AppendSweep(ring []Sweep, s Sweep, cap_ int) []Sweep {
	ring = append(ring, s)
	if cap_ > 0 && len(ring) > cap_ {
		ring = ring[len(ring)-cap_:]
	}
	return ring
}
