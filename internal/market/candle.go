package market

import "time"

// Timeframe identifies a candle aggregation interval.
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the wall-clock length of one candle of this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Candle represents a single OHLCV candlestick. Candles are immutable once
// produced by the collector.
type Candle struct {
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// CloseTime returns the instant the candle closed.
func (c Candle) CloseTime() time.Time {
	return c.OpenTime.Add(c.Timeframe.Duration())
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyRatio returns body/range, or 0 for a zero-range candle.
func (c Candle) BodyRatio() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.Body() / r
}

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}
