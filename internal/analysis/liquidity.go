package analysis

import (
	"sort"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// LevelType identifies what kind of resting liquidity a level represents.
type LevelType string

const (
	LevelBSL         LevelType = "BSL"
	LevelSSL         LevelType = "SSL"
	LevelEQH         LevelType = "EQH"
	LevelEQL         LevelType = "EQL"
	LevelPDH         LevelType = "PDH"
	LevelPDL         LevelType = "PDL"
	LevelPWH         LevelType = "PWH"
	LevelPWL         LevelType = "PWL"
	LevelSessionHigh LevelType = "SESSION_HIGH"
	LevelSessionLow  LevelType = "SESSION_LOW"
)

// HighSide reports whether the level sits above market (buy-side liquidity),
// swept by trading up through it.
func (t LevelType) HighSide() bool {
	switch t {
	case LevelBSL, LevelEQH, LevelPDH, LevelPWH, LevelSessionHigh:
		return true
	}
	return false
}

// LevelState is the lifecycle state of a liquidity level.
type LevelState string

const (
	LevelActive  LevelState = "ACTIVE"
	LevelSwept   LevelState = "SWEPT"
	LevelExpired LevelState = "EXPIRED"
)

// Terminal reports whether the level state admits no further transitions.
func (s LevelState) Terminal() bool {
	return s == LevelSwept || s == LevelExpired
}

// LiquidityLevel is a price level where resting orders are expected.
type LiquidityLevel struct {
	Price      float64          `json:"price"`
	Type       LevelType        `json:"type"`
	Score      int              `json:"score"` // 0-11
	State      LevelState       `json:"state"`
	CreatedAt  time.Time        `json:"created_at"`
	SweptAt    *time.Time       `json:"swept_at,omitempty"`
	Timeframe  market.Timeframe `json:"timeframe"`
	SwingCount int              `json:"swing_count"`
}

// MaxLevelScore caps the liquidity score.
const MaxLevelScore = 11

// LiquidityMapper builds and scores liquidity levels from swings, daily
// candles and session ranges. Levels are rebuilt fresh every cycle.
type LiquidityMapper struct {
	clusterTolerance float64 // equal-high/low grouping, fraction of price
	mergeTolerance   float64 // dedupe distance, fraction of price
	expiry           time.Duration
}

// NewLiquidityMapper creates a mapper with the standard tolerances: 0.1%
// equal-extreme clustering, 0.05% merge distance, 20-day expiry.
func NewLiquidityMapper() *LiquidityMapper {
	return &LiquidityMapper{
		clusterTolerance: 0.001,
		mergeTolerance:   0.0005,
		expiry:           20 * 24 * time.Hour,
	}
}

func timeframeBonus(tf market.Timeframe) int {
	switch tf {
	case market.Timeframe1d:
		return 3
	case market.Timeframe4h:
		return 2
	case market.Timeframe1h:
		return 1
	default:
		return 0
	}
}

// scoreLevel applies the 0-11 scoring model.
func (m *LiquidityMapper) scoreLevel(l LiquidityLevel, equalCluster, sessionDerived bool, now time.Time) int {
	score := l.SwingCount
	if score > 3 {
		score = 3
	}
	score += timeframeBonus(l.Timeframe)
	if equalCluster {
		score += 2
	}
	if now.Sub(l.CreatedAt) > 3*24*time.Hour {
		score++
	}
	if sessionDerived {
		score++
	}
	if score > MaxLevelScore {
		score = MaxLevelScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Map builds the candidate level set: one level per swing, equal-extreme
// clusters, prior-day and prior-week extremes from daily candles, and
// optional session extremes. The result is merged by proximity and scored.
func (m *LiquidityMapper) Map(swings []Swing, daily []market.Candle, sessionHigh, sessionLow *float64, now time.Time) []LiquidityLevel {
	var levels []LiquidityLevel

	// Raw swing levels.
	for _, s := range swings {
		typ := LevelSSL
		if s.Type == SwingHigh {
			typ = LevelBSL
		}
		l := LiquidityLevel{
			Price:      s.Price,
			Type:       typ,
			State:      LevelActive,
			CreatedAt:  s.Time,
			Timeframe:  s.Timeframe,
			SwingCount: 1,
		}
		l.Score = m.scoreLevel(l, false, false, now)
		levels = append(levels, l)
	}

	// Equal highs / equal lows.
	levels = append(levels, m.clusterLevels(swingsOfType(swings, SwingHigh), LevelEQH, now)...)
	levels = append(levels, m.clusterLevels(swingsOfType(swings, SwingLow), LevelEQL, now)...)

	// Prior day and prior week extremes from completed daily candles.
	if len(daily) >= 1 {
		pd := daily[len(daily)-1]
		levels = append(levels, m.candleLevels(pd, pd, LevelPDH, LevelPDL, now)...)
	}
	if len(daily) >= 5 {
		week := daily[len(daily)-5:]
		hi, lo := week[0], week[0]
		for _, c := range week[1:] {
			if c.High > hi.High {
				hi = c
			}
			if c.Low < lo.Low {
				lo = c
			}
		}
		levels = append(levels, m.candleLevels(hi, lo, LevelPWH, LevelPWL, now)...)
	}

	// Session extremes.
	if sessionHigh != nil {
		l := LiquidityLevel{Price: *sessionHigh, Type: LevelSessionHigh, State: LevelActive, CreatedAt: now}
		l.Score = m.scoreLevel(l, false, true, now)
		levels = append(levels, l)
	}
	if sessionLow != nil {
		l := LiquidityLevel{Price: *sessionLow, Type: LevelSessionLow, State: LevelActive, CreatedAt: now}
		l.Score = m.scoreLevel(l, false, true, now)
		levels = append(levels, l)
	}

	return m.merge(levels)
}

// candleLevels emits a high-side and low-side level pair from daily candles.
func (m *LiquidityMapper) candleLevels(hi, lo market.Candle, hiType, loType LevelType, now time.Time) []LiquidityLevel {
	h := LiquidityLevel{Price: hi.High, Type: hiType, State: LevelActive, CreatedAt: hi.OpenTime, Timeframe: market.Timeframe1d}
	h.Score = m.scoreLevel(h, false, false, now)
	l := LiquidityLevel{Price: lo.Low, Type: loType, State: LevelActive, CreatedAt: lo.OpenTime, Timeframe: market.Timeframe1d}
	l.Score = m.scoreLevel(l, false, false, now)
	return []LiquidityLevel{h, l}
}

// clusterLevels groups same-side swings within the cluster tolerance into
// equal-extreme levels at the cluster average price.
func (m *LiquidityMapper) clusterLevels(swings []Swing, typ LevelType, now time.Time) []LiquidityLevel {
	if len(swings) < 2 {
		return nil
	}
	sorted := make([]Swing, len(swings))
	copy(sorted, swings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var out []LiquidityLevel
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Price-sorted[i].Price <= sorted[i].Price*m.clusterTolerance {
			j++
		}
		if n := j - i; n >= 2 {
			sum := 0.0
			oldest := sorted[i].Time
			tf := sorted[i].Timeframe
			for _, s := range sorted[i:j] {
				sum += s.Price
				if s.Time.Before(oldest) {
					oldest = s.Time
				}
			}
			l := LiquidityLevel{
				Price:      sum / float64(n),
				Type:       typ,
				State:      LevelActive,
				CreatedAt:  oldest,
				Timeframe:  tf,
				SwingCount: n,
			}
			l.Score = m.scoreLevel(l, true, false, now)
			out = append(out, l)
		}
		i = j
	}
	return out
}

// merge collapses levels within the merge tolerance of each other, keeping
// the higher-scored level.
func (m *LiquidityMapper) merge(levels []LiquidityLevel) []LiquidityLevel {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })

	var out []LiquidityLevel
	for _, l := range levels {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if l.Price-prev.Price <= prev.Price*m.mergeTolerance && l.Type.HighSide() == prev.Type.HighSide() {
				if l.Score > prev.Score {
					*prev = l
				}
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

// levelEvent is a lifecycle event applied to a level.
type levelEvent int

const (
	levelEventNone levelEvent = iota
	levelEventSweep
	levelEventExpiry
)

// transitionLevel is the single legal (state, event) -> state mapping for
// liquidity levels. SWEPT and EXPIRED are terminal.
func transitionLevel(state LevelState, ev levelEvent) LevelState {
	if state.Terminal() {
		return state
	}
	switch ev {
	case levelEventSweep:
		return LevelSwept
	case levelEventExpiry:
		return LevelExpired
	}
	return state
}

// UpdateLevelStates transitions ACTIVE levels against recent candles: a
// high-side level is swept when a later candle's high trades at or through
// it, a low-side level when a later candle's low does. Only candles formed
// strictly after the level's creation count. Unswept levels expire after the
// mapper's expiry horizon.
func (m *LiquidityMapper) UpdateLevelStates(levels []LiquidityLevel, candles []market.Candle, now time.Time) {
	for i := range levels {
		l := &levels[i]
		if l.State.Terminal() {
			continue
		}
		for _, c := range candles {
			if !c.OpenTime.After(l.CreatedAt) {
				continue
			}
			swept := false
			if l.Type.HighSide() {
				swept = c.High >= l.Price
			} else {
				swept = c.Low <= l.Price
			}
			if swept {
				l.State = transitionLevel(l.State, levelEventSweep)
				t := c.OpenTime
				l.SweptAt = &t
				break
			}
		}
		if l.State == LevelActive && now.Sub(l.CreatedAt) > m.expiry {
			l.State = transitionLevel(l.State, levelEventExpiry)
		}
	}
}

// ActiveLevels filters to levels still in the ACTIVE state.
func ActiveLevels(levels []LiquidityLevel) []LiquidityLevel {
	var out []LiquidityLevel
	for _, l := range levels {
		if l.State == LevelActive {
			out = append(out, l)
		}
	}
	return out
}
