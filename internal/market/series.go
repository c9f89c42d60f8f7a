package market

import "time"

// DefaultSeriesCap bounds the number of candles retained per timeframe.
const DefaultSeriesCap = 500

// Series is a bounded, ascending-time candle buffer for one timeframe.
// Newest candles sit at the end; appends past the cap truncate the oldest.
type Series struct {
	Timeframe Timeframe
	candles   []Candle
	cap_      int
}

// NewSeries creates an empty series with the given capacity. A capacity of
// zero or less falls back to DefaultSeriesCap.
func NewSeries(tf Timeframe, capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultSeriesCap
	}
	return &Series{
		Timeframe: tf,
		candles:   make([]Candle, 0, capacity),
		cap_:      capacity,
	}
}

// Append merges new candles into the series. A candle whose open time matches
// the current last candle replaces it (a still-forming candle finalizing);
// older candles are ignored. The buffer is truncated to capacity on every
// write, keeping the most recent.
func (s *Series) Append(candles ...Candle) {
	for _, c := range candles {
		n := len(s.candles)
		if n > 0 {
			last := s.candles[n-1]
			if c.OpenTime.Before(last.OpenTime) {
				continue
			}
			if c.OpenTime.Equal(last.OpenTime) {
				s.candles[n-1] = c
				continue
			}
		}
		s.candles = append(s.candles, c)
	}
	if len(s.candles) > s.cap_ {
		keep := s.candles[len(s.candles)-s.cap_:]
		s.candles = append(s.candles[:0], keep...)
	}
}

// Candles returns the underlying ascending-time slice. Callers must treat it
// as read-only.
func (s *Series) Candles() []Candle {
	return s.candles
}

// Len returns the number of buffered candles.
func (s *Series) Len() int {
	return len(s.candles)
}

// Last returns the most recent candle and whether one exists.
func (s *Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// LastClosed returns the most recent candle whose close time is at or before
// now, skipping a still-forming last candle.
func (s *Series) LastClosed(now time.Time) (Candle, bool) {
	for i := len(s.candles) - 1; i >= 0; i-- {
		if !s.candles[i].CloseTime().After(now) {
			return s.candles[i], true
		}
	}
	return Candle{}, false
}
