package analysis

// Zone marks which half of a reference range price is trading in.
type Zone string

const (
	ZonePremium  Zone = "PREMIUM"
	ZoneDiscount Zone = "DISCOUNT"
)

// ZoneInfo describes where price sits inside a reference swing range.
type ZoneInfo struct {
	Equilibrium float64 `json:"equilibrium"`
	Zone        Zone    `json:"zone"`
	Depth       float64 `json:"depth"` // 0 at equilibrium, 1 at the extreme
	OTELow      float64 `json:"ote_low"`
	OTEHigh     float64 `json:"ote_high"`
	RangeHigh   float64 `json:"range_high"`
	RangeLow    float64 `json:"range_low"`
}

// CalcZone evaluates price against the reference high/low range.
// Equilibrium is the midpoint; the zone is PREMIUM at or above it, DISCOUNT
// below. Depth is the normalized distance from equilibrium toward the
// relevant extreme, clamped to [0,1]. The OTE band is the bullish optimal
// entry window: the 61.8%-79% retracement measured down from the high.
func CalcZone(rangeHigh, rangeLow, price float64) ZoneInfo {
	info := ZoneInfo{RangeHigh: rangeHigh, RangeLow: rangeLow}
	span := rangeHigh - rangeLow
	if span <= 0 {
		info.Zone = ZoneDiscount
		return info
	}

	info.Equilibrium = (rangeHigh + rangeLow) / 2
	info.OTELow = rangeLow + 0.21*span
	info.OTEHigh = rangeLow + 0.382*span

	if price >= info.Equilibrium {
		info.Zone = ZonePremium
		info.Depth = (price - info.Equilibrium) / (span / 2)
	} else {
		info.Zone = ZoneDiscount
		info.Depth = (info.Equilibrium - price) / (span / 2)
	}
	if info.Depth > 1 {
		info.Depth = 1
	}
	if info.Depth < 0 {
		info.Depth = 0
	}
	return info
}

// InOTE reports whether price sits inside the bullish optimal entry band.
func (z ZoneInfo) InOTE(price float64) bool {
	return price >= z.OTELow && price <= z.OTEHigh
}

// CorrectSide reports whether price is in the right zone to enter toward the
// given direction: discount for longs, premium for shorts.
func (z ZoneInfo) CorrectSide(direction GapType) bool {
	if direction == BullishGap {
		return z.Zone == ZoneDiscount
	}
	return z.Zone == ZonePremium
}
