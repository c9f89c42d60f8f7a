package bias

import (
	"math"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// Direction is the daily trade direction the engine settles on.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	NoTrade Direction = "NO_TRADE"
)

// Framework (B1) describes what the day is expected to do structurally.
type Framework string

const (
	RetracementExpected Framework = "RETRACEMENT_EXPECTED"
	ExpansionExpected   Framework = "EXPANSION_EXPECTED"
	WaitingForSweep     Framework = "WAITING_FOR_SWEEP"
)

// AMDPhase is the intraday accumulation/manipulation/distribution phase.
type AMDPhase string

const (
	Accumulation AMDPhase = "ACCUMULATION"
	Manipulation AMDPhase = "MANIPULATION"
	Distribution AMDPhase = "DISTRIBUTION"
)

// DailyBias is the once-per-day output consumed by the signal detector.
type DailyBias struct {
	Date        time.Time                `json:"date"`
	Direction   Direction                `json:"direction"`
	Framework   Framework                `json:"framework"`
	Draw        *analysis.LiquidityLevel `json:"draw,omitempty"`
	Zone        analysis.ZoneInfo        `json:"zone"`
	Phase       AMDPhase                 `json:"phase"`
	BothTFAgree bool                     `json:"both_tf_agree"`
	FastTrend   analysis.Trend           `json:"fast_trend"`
	SlowTrend   analysis.Trend           `json:"slow_trend"`
}

// Inputs carries everything a bias computation reads. The scheduler owns the
// underlying caches and hands a snapshot in, so the engine stays pure.
type Inputs struct {
	FastStructure analysis.StructureState
	SlowStructure analysis.StructureState
	FastSwings    []analysis.Swing
	Levels        []analysis.LiquidityLevel
	Price         float64
	DayOpen       float64
	Session       market.Session
	InNoTrade     bool
	DayStart      time.Time // session-calendar day open stamped onto the bias
	Now           time.Time
}

// EngineConfig tunes the bias thresholds. Zero values take defaults.
type EngineConfig struct {
	RetracementMaxAge  time.Duration // swing younger than this -> retracement expected
	DrawScoreOverride  int           // extra score needed to beat a nearer level
	DrawDistanceFactor float64       // override candidate must be within this x nearest distance
	ManipulationPct    float64       // displacement from day open marking manipulation
}

type Engine struct {
	retracementMaxAge  time.Duration
	drawScoreOverride  int
	drawDistanceFactor float64
	manipulationPct    float64
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.RetracementMaxAge <= 0 {
		cfg.RetracementMaxAge = 40 * time.Hour
	}
	if cfg.DrawScoreOverride <= 0 {
		cfg.DrawScoreOverride = 3
	}
	if cfg.DrawDistanceFactor <= 0 {
		cfg.DrawDistanceFactor = 3
	}
	if cfg.ManipulationPct <= 0 {
		cfg.ManipulationPct = 0.003
	}
	return &Engine{
		retracementMaxAge:  cfg.RetracementMaxAge,
		drawScoreOverride:  cfg.DrawScoreOverride,
		drawDistanceFactor: cfg.DrawDistanceFactor,
		manipulationPct:    cfg.ManipulationPct,
	}
}

// Compute derives the daily bias from two reference-timeframe structures,
// the mapped liquidity, and the current session.
func (e *Engine) Compute(in Inputs) DailyBias {
	date := in.DayStart
	if date.IsZero() {
		date = in.Now.Truncate(24 * time.Hour)
	}
	b := DailyBias{
		Date:      date,
		Direction: NoTrade,
		Framework: WaitingForSweep,
		Phase:     Accumulation,
		FastTrend: in.FastStructure.Trend,
		SlowTrend: in.SlowStructure.Trend,
	}

	b.BothTFAgree = bothDirectional(in.FastStructure.Trend, in.SlowStructure.Trend)
	b.Direction = e.direction(in)
	b.Framework = e.framework(in)
	b.Draw = e.selectDraw(in.Levels, in.Price, b.Direction)
	b.Zone = e.referenceZone(in)
	b.Phase = e.amdPhase(in, b.Direction)
	return b
}

// direction requires a clear fast-timeframe trend with the slow timeframe
// either agreeing or undecided. Configured no-trade windows veto everything.
func (e *Engine) direction(in Inputs) Direction {
	if in.InNoTrade {
		return NoTrade
	}
	fast := in.FastStructure.Trend
	slow := in.SlowStructure.Trend
	if fast != analysis.TrendBullish && fast != analysis.TrendBearish {
		return NoTrade
	}
	if slow != fast && slow != analysis.TrendUndefined {
		return NoTrade
	}
	if fast == analysis.TrendBullish {
		return Bullish
	}
	return Bearish
}

func bothDirectional(fast, slow analysis.Trend) bool {
	directional := func(t analysis.Trend) bool {
		return t == analysis.TrendBullish || t == analysis.TrendBearish
	}
	return directional(fast) && directional(slow) && fast == slow
}

func (e *Engine) framework(in Inputs) Framework {
	fast := in.FastStructure.Trend
	if fast != analysis.TrendBullish && fast != analysis.TrendBearish {
		return WaitingForSweep
	}
	if in.FastStructure.LastSwingTime.IsZero() {
		return WaitingForSweep
	}
	if in.Now.Sub(in.FastStructure.LastSwingTime) < e.retracementMaxAge {
		return RetracementExpected
	}
	return ExpansionExpected
}

// selectDraw picks the nearest ACTIVE level on the bias side of price. A
// farther level wins only with a materially higher score within a bounded
// distance multiple, so a strong pool can outrank a weak nearby one.
func (e *Engine) selectDraw(levels []analysis.LiquidityLevel, price float64, dir Direction) *analysis.LiquidityLevel {
	if dir == NoTrade || price <= 0 {
		return nil
	}
	var nearest *analysis.LiquidityLevel
	nearestDist := math.MaxFloat64
	for i := range levels {
		lvl := &levels[i]
		if lvl.State != analysis.LevelActive {
			continue
		}
		if dir == Bullish && (!lvl.Type.HighSide() || lvl.Price <= price) {
			continue
		}
		if dir == Bearish && (lvl.Type.HighSide() || lvl.Price >= price) {
			continue
		}
		d := math.Abs(lvl.Price - price)
		if d < nearestDist {
			nearest = lvl
			nearestDist = d
		}
	}
	if nearest == nil {
		return nil
	}

	best := nearest
	for i := range levels {
		lvl := &levels[i]
		if lvl.State != analysis.LevelActive || lvl == nearest {
			continue
		}
		if dir == Bullish && (!lvl.Type.HighSide() || lvl.Price <= price) {
			continue
		}
		if dir == Bearish && (lvl.Type.HighSide() || lvl.Price >= price) {
			continue
		}
		d := math.Abs(lvl.Price - price)
		if d > nearestDist*e.drawDistanceFactor {
			continue
		}
		if lvl.Score >= best.Score+e.drawScoreOverride {
			best = lvl
		}
	}
	return best
}

// referenceZone measures price against the most recent fast-timeframe swing
// high/low pair.
func (e *Engine) referenceZone(in Inputs) analysis.ZoneInfo {
	var high, low *analysis.Swing
	for i := len(in.FastSwings) - 1; i >= 0; i-- {
		s := &in.FastSwings[i]
		if s.Type == analysis.SwingHigh && high == nil {
			high = s
		}
		if s.Type == analysis.SwingLow && low == nil {
			low = s
		}
		if high != nil && low != nil {
			break
		}
	}
	if high == nil || low == nil || high.Price <= low.Price {
		return analysis.ZoneInfo{}
	}
	return analysis.CalcZone(high.Price, low.Price, in.Price)
}

func (e *Engine) amdPhase(in Inputs, dir Direction) AMDPhase {
	switch in.Session {
	case market.SessionAsian:
		return Accumulation
	case market.SessionNYMorning, market.SessionNYAfternoon:
		return Distribution
	}

	// London and off-session hours: manipulation is a push against the day
	// open in the bias-opposing direction.
	if in.DayOpen <= 0 {
		return Accumulation
	}
	move := (in.Price - in.DayOpen) / in.DayOpen
	switch dir {
	case Bullish:
		if move < -e.manipulationPct {
			return Manipulation
		}
	case Bearish:
		if move > e.manipulationPct {
			return Manipulation
		}
	default:
		if math.Abs(move) > e.manipulationPct {
			return Manipulation
		}
	}
	return Accumulation
}
