package analysis

import (
	"math"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// DisplacementScore is the graded conviction of a price move.
type DisplacementScore struct {
	Score       int     `json:"score"`     // 0-10
	Direction   GapType `json:"direction"` // BULLISH or BEARISH
	RangeATR    float64 `json:"range_atr"` // move range / ATR
	VolumeRatio float64 `json:"volume_ratio"`
	BodyRatio   float64 `json:"body_ratio"` // average body/range over the move
	GapCount    int     `json:"gap_count"`  // imbalances formed inside the move
}

// DisplacementScorer grades candle ranges against trailing volatility and
// volume baselines.
type DisplacementScorer struct {
	atrPeriod    int
	volumePeriod int
	minQualify   int
}

// NewDisplacementScorer creates a scorer. Zero or negative inputs fall back
// to ATR period 14, volume lookback 20 and qualifying minimum 6.
func NewDisplacementScorer(atrPeriod, volumePeriod, minQualify int) *DisplacementScorer {
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	if volumePeriod <= 0 {
		volumePeriod = 20
	}
	if minQualify <= 0 {
		minQualify = 6
	}
	return &DisplacementScorer{
		atrPeriod:    atrPeriod,
		volumePeriod: volumePeriod,
		minQualify:   minQualify,
	}
}

// MinQualifying returns the configured qualifying threshold.
func (s *DisplacementScorer) MinQualifying() int {
	return s.minQualify
}

// Qualifies reports whether the score meets the scorer's configured minimum.
func (s *DisplacementScorer) Qualifies(ds DisplacementScore) bool {
	return ds.Score >= s.minQualify
}

// trueRange returns the true range of candles[i] given its predecessor.
func trueRange(candles []market.Candle, i int) float64 {
	c := candles[i]
	tr := c.High - c.Low
	if i > 0 {
		prevClose := candles[i-1].Close
		if d := math.Abs(c.High - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(c.Low - prevClose); d > tr {
			tr = d
		}
	}
	return tr
}

// atrBefore computes the mean true range over the trailing window ending just
// before index start. Returns 0 when no prior candles exist.
func (s *DisplacementScorer) atrBefore(candles []market.Candle, start int) float64 {
	if start <= 0 {
		return 0
	}
	from := start - s.atrPeriod
	if from < 0 {
		from = 0
	}
	sum := 0.0
	n := 0
	for i := from; i < start; i++ {
		sum += trueRange(candles, i)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// avgVolumeBefore computes the mean volume over the trailing lookback ending
// just before index start.
func (s *DisplacementScorer) avgVolumeBefore(candles []market.Candle, start int) float64 {
	if start <= 0 {
		return 0
	}
	from := start - s.volumePeriod
	if from < 0 {
		from = 0
	}
	sum := 0.0
	n := 0
	for i := from; i < start; i++ {
		sum += candles[i].Volume
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Score grades the candle range [start, end] (inclusive). Invalid indices
// yield a zero score rather than an error. The total 0-10 sums four parts:
// move-range vs ATR (0-3), volume vs trailing average (0-2), average body
// ratio (0-2) and imbalances formed inside the move (0-3).
func (s *DisplacementScorer) Score(candles []market.Candle, start, end int) DisplacementScore {
	if start < 0 || end >= len(candles) || start > end {
		return DisplacementScore{}
	}

	window := candles[start : end+1]
	first, last := window[0], window[len(window)-1]

	direction := BearishGap
	if last.Close >= first.Close {
		direction = BullishGap
	}

	score := DisplacementScore{Direction: direction}

	// Move range vs ATR.
	hi, lo := window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	atr := s.atrBefore(candles, start)
	if atr > 0 {
		score.RangeATR = (hi - lo) / atr
		switch {
		case score.RangeATR >= 2.0:
			score.Score += 3
		case score.RangeATR >= 1.5:
			score.Score += 2
		case score.RangeATR >= 1.0:
			score.Score += 1
		}
	}

	// Volume vs trailing average.
	avgBase := s.avgVolumeBefore(candles, start)
	if avgBase > 0 {
		vol := 0.0
		for _, c := range window {
			vol += c.Volume
		}
		vol /= float64(len(window))
		score.VolumeRatio = vol / avgBase
		switch {
		case score.VolumeRatio >= 3.0:
			score.Score += 2
		case score.VolumeRatio >= 2.0:
			score.Score += 1
		}
	}

	// Average body-to-range conviction.
	br := 0.0
	for _, c := range window {
		br += c.BodyRatio()
	}
	br /= float64(len(window))
	score.BodyRatio = br
	switch {
	case br >= 0.7:
		score.Score += 2
	case br >= 0.5:
		score.Score += 1
	}

	// Imbalances formed inside the move.
	gaps := 0
	for i := 0; i+2 < len(window); i++ {
		if window[i+2].Low > window[i].High || window[i+2].High < window[i].Low {
			gaps++
		}
	}
	score.GapCount = gaps
	switch {
	case gaps >= 3:
		score.Score += 3
	case gaps == 2:
		score.Score += 2
	case gaps == 1:
		score.Score += 1
	}

	if score.Score > 10 {
		score.Score = 10
	}
	return score
}

// ScoreRecent grades the trailing n candles of the sequence.
func (s *DisplacementScorer) ScoreRecent(candles []market.Candle, n int) DisplacementScore {
	if n <= 0 || len(candles) == 0 {
		return DisplacementScore{}
	}
	start := len(candles) - n
	if start < 0 {
		start = 0
	}
	return s.Score(candles, start, len(candles)-1)
}
