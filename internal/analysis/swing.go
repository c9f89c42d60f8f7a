package analysis

import (
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// SwingType distinguishes swing highs from swing lows.
type SwingType string

const (
	SwingHigh SwingType = "HIGH"
	SwingLow  SwingType = "LOW"
)

// Swing is a confirmed fractal extreme. Swings are never mutated after
// detection and are deduplicated by (time, type).
type Swing struct {
	Time      time.Time        `json:"time"`
	Timeframe market.Timeframe `json:"timeframe"`
	Type      SwingType        `json:"type"`
	Price     float64          `json:"price"`
	Index     int              `json:"index"`
}

// SwingDetector finds fractal swing points in a candle sequence.
type SwingDetector struct {
	lookback int
}

// NewSwingDetector creates a detector requiring lookback candles on each side
// of an extreme. A lookback of zero or less falls back to 3.
func NewSwingDetector(lookback int) *SwingDetector {
	if lookback <= 0 {
		lookback = 3
	}
	return &SwingDetector{lookback: lookback}
}

// Detect scans an ascending-time candle sequence for swing highs and lows.
// A candle is a swing high when its high strictly exceeds the highs of the
// lookback candles on both sides; symmetric with strict less-than for lows.
// Requires at least 2*lookback+1 candles; the trailing lookback candles can
// never be confirmed yet. Deterministic for a given slice.
func (d *SwingDetector) Detect(candles []market.Candle) []Swing {
	n := d.lookback
	if len(candles) < 2*n+1 {
		return nil
	}

	var swings []Swing
	for i := n; i < len(candles)-n; i++ {
		c := candles[i]

		isHigh := true
		isLow := true
		for j := i - n; j <= i+n; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= c.High {
				isHigh = false
			}
			if candles[j].Low <= c.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			swings = append(swings, Swing{
				Time:      c.OpenTime,
				Timeframe: c.Timeframe,
				Type:      SwingHigh,
				Price:     c.High,
				Index:     i,
			})
		}
		if isLow {
			swings = append(swings, Swing{
				Time:      c.OpenTime,
				Timeframe: c.Timeframe,
				Type:      SwingLow,
				Price:     c.Low,
				Index:     i,
			})
		}
	}
	return swings
}

// MergeSwings merges freshly detected swings into the known set, dropping
// duplicates by (time, type) and truncating to the most recent maxKeep.
func MergeSwings(known, fresh []Swing, maxKeep int) []Swing {
	type key struct {
		t  time.Time
		ty SwingType
	}
	seen := make(map[key]bool, len(known))
	merged := make([]Swing, 0, len(known)+len(fresh))
	for _, s := range known {
		k := key{s.Time, s.Type}
		if !seen[k] {
			seen[k] = true
			merged = append(merged, s)
		}
	}
	for _, s := range fresh {
		k := key{s.Time, s.Type}
		if !seen[k] {
			seen[k] = true
			merged = append(merged, s)
		}
	}
	sortSwingsByTime(merged)
	if maxKeep > 0 && len(merged) > maxKeep {
		merged = merged[len(merged)-maxKeep:]
	}
	return merged
}

func sortSwingsByTime(swings []Swing) {
	// Insertion sort: inputs are near-sorted already.
	for i := 1; i < len(swings); i++ {
		for j := i; j > 0 && swings[j].Time.Before(swings[j-1].Time); j-- {
			swings[j], swings[j-1] = swings[j-1], swings[j]
		}
	}
}

// swingsOfType filters swings by type, preserving order.
func swingsOfType(swings []Swing, t SwingType) []Swing {
	var out []Swing
	for _, s := range swings {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
