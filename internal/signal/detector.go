package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bias"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// Side is the trade direction of an emitted signal.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Signal is a fully priced trade candidate handed to the risk manager.
type Signal struct {
	ID                string    `json:"id"`
	Time              time.Time `json:"time"`
	Side              Side      `json:"side"`
	Entry             float64   `json:"entry"`
	StopLoss          float64   `json:"stop_loss"`
	TP1               float64   `json:"tp1"`
	TP2               float64   `json:"tp2"`
	RiskReward        float64   `json:"risk_reward"`
	Confidence        int       `json:"confidence"`
	GapID             string    `json:"gap_id"`
	SweepScore        int       `json:"sweep_score"`
	DisplacementScore int       `json:"displacement_score"`
}

// Inputs is the per-cycle snapshot the detector evaluates. The scheduler
// assembles it from the shared caches so the detector itself stays pure.
type Inputs struct {
	Bias         bias.DailyBias
	Zone         analysis.ZoneInfo
	InKillzone   bool
	Sweeps       []analysis.Sweep
	Gaps         []analysis.FairValueGap
	Levels       []analysis.LiquidityLevel
	FastEvent    analysis.StructureEvent
	SlowEvent    analysis.StructureEvent
	FastSwings   int
	SlowSwings   int
	Critical     *analysis.Swing
	Displacement analysis.DisplacementScore
	Price        float64
	Now          time.Time
}

// debounceEntry remembers the last SMS consumed per timeframe. A repeat with
// the same swing count and direction is suppressed; a new swing or a
// direction flip clears it.
type debounceEntry struct {
	SwingCount int
	Direction  analysis.Trend
}

// DebounceState is owned by the scheduler and threaded into every Detect call.
type DebounceState map[market.Timeframe]debounceEntry

func NewDebounceState() DebounceState {
	return make(DebounceState)
}

// DetectorConfig tunes gating and pricing. Zero values take defaults.
type DetectorConfig struct {
	MinSweepScore    int
	MinConfidence    int
	MinRiskReward    float64
	StopBufferPct    float64
	TP1FallbackPct   float64
	TP2FallbackPct   float64
	BlockScore       int
	BlockDistancePct float64
}

type Detector struct {
	minSweepScore    int
	minConfidence    int
	minRiskReward    float64
	stopBufferPct    float64
	tp1FallbackPct   float64
	tp2FallbackPct   float64
	blockScore       int
	blockDistancePct float64
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.MinSweepScore <= 0 {
		cfg.MinSweepScore = 5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 50
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = 2
	}
	if cfg.StopBufferPct <= 0 {
		cfg.StopBufferPct = 0.001
	}
	if cfg.TP1FallbackPct <= 0 {
		cfg.TP1FallbackPct = 0.01
	}
	if cfg.TP2FallbackPct <= 0 {
		cfg.TP2FallbackPct = 0.02
	}
	if cfg.BlockScore <= 0 {
		cfg.BlockScore = 7
	}
	if cfg.BlockDistancePct <= 0 {
		cfg.BlockDistancePct = 0.005
	}
	return &Detector{
		minSweepScore:    cfg.MinSweepScore,
		minConfidence:    cfg.MinConfidence,
		minRiskReward:    cfg.MinRiskReward,
		stopBufferPct:    cfg.StopBufferPct,
		tp1FallbackPct:   cfg.TP1FallbackPct,
		tp2FallbackPct:   cfg.TP2FallbackPct,
		blockScore:       cfg.BlockScore,
		blockDistancePct: cfg.BlockDistancePct,
	}
}

// Detect runs the gate sequence in order, short-circuiting on the first
// failure. The returned reason names the gate that blocked, or is empty on
// success. A consumed SMS is recorded in the debounce state.
func (d *Detector) Detect(in Inputs, debounce DebounceState) (*Signal, string) {
	// Gate 1: directional bias.
	var dir analysis.GapType
	switch in.Bias.Direction {
	case bias.Bullish:
		dir = analysis.BullishGap
	case bias.Bearish:
		dir = analysis.BearishGap
	default:
		return nil, "bias is not directional"
	}

	// Gate 2: tradeable session.
	if !in.InKillzone {
		return nil, "outside killzone"
	}

	// Gate 3: a qualifying sweep in the bias direction.
	sweep, ok := d.latestSweep(in.Sweeps, dir)
	if !ok {
		return nil, "no qualifying sweep"
	}

	// Gate 4: a confirmed SMS on an execution timeframe. A CHOCH alone is
	// not enough.
	sms, ok := d.confirmedSMS(in, dir, debounce)
	if !ok {
		return nil, "no confirmed shift in market structure"
	}

	// Gate 5: a quality entry gap in the bias direction.
	gap := analysis.SelectEntryGap(in.Gaps, dir)
	if gap == nil {
		return nil, "no entry gap"
	}

	// Gate 6: price on the correct side of equilibrium.
	if !in.Zone.CorrectSide(dir) {
		return nil, fmt.Sprintf("price in %s zone, wrong side for %s entry", in.Zone.Zone, dir)
	}

	// Gate 7: no strong opposing liquidity crowding the entry.
	entry := gap.CE
	if lvl := d.blockingLevel(in.Levels, entry, dir); lvl != nil {
		return nil, fmt.Sprintf("blocking %s liquidity at %.4f", lvl.Type, lvl.Price)
	}

	stop := d.stopLoss(in.Critical, gap, dir)
	tp1 := d.takeProfit1(in.Gaps, entry, dir)
	tp2 := d.takeProfit2(in.Levels, entry, tp1, dir)

	risk := math.Abs(entry - stop)
	if risk <= 0 {
		return nil, "degenerate stop distance"
	}
	rr := math.Abs(tp2-entry) / risk
	if rr < d.minRiskReward {
		return nil, fmt.Sprintf("risk:reward %.2f below minimum %.2f", rr, d.minRiskReward)
	}

	conf := d.confidence(in, sweep, *gap, rr)
	if conf < d.minConfidence {
		return nil, fmt.Sprintf("confidence %d below minimum %d", conf, d.minConfidence)
	}

	debounce[sms.Timeframe] = debounceEntry{
		SwingCount: d.swingCountFor(in, sms.Timeframe),
		Direction:  sms.Direction,
	}

	side := Long
	if dir == analysis.BearishGap {
		side = Short
	}
	return &Signal{
		ID:                uuid.NewString(),
		Time:              in.Now,
		Side:              side,
		Entry:             entry,
		StopLoss:          stop,
		TP1:               tp1,
		TP2:               tp2,
		RiskReward:        rr,
		Confidence:        conf,
		GapID:             gap.ID,
		SweepScore:        sweep.Score,
		DisplacementScore: in.Displacement.Score,
	}, ""
}

func (d *Detector) latestSweep(sweeps []analysis.Sweep, dir analysis.GapType) (analysis.Sweep, bool) {
	for i := len(sweeps) - 1; i >= 0; i-- {
		s := sweeps[i]
		if s.Score >= d.minSweepScore && s.Direction() == dir {
			return s, true
		}
	}
	return analysis.Sweep{}, false
}

// confirmedSMS accepts an SMS from either execution timeframe whose implied
// direction matches the bias, unless the debounce state has already consumed
// an identical event this swing generation.
func (d *Detector) confirmedSMS(in Inputs, dir analysis.GapType, debounce DebounceState) (analysis.StructureEvent, bool) {
	want := analysis.TrendBullish
	if dir == analysis.BearishGap {
		want = analysis.TrendBearish
	}
	for _, ev := range []analysis.StructureEvent{in.FastEvent, in.SlowEvent} {
		if ev.Type != analysis.EventSMS || ev.Direction != want {
			continue
		}
		if prev, ok := debounce[ev.Timeframe]; ok {
			if prev.SwingCount == d.swingCountFor(in, ev.Timeframe) && prev.Direction == ev.Direction {
				continue
			}
		}
		return ev, true
	}
	return analysis.StructureEvent{}, false
}

func (d *Detector) swingCountFor(in Inputs, tf market.Timeframe) int {
	if tf == in.SlowEvent.Timeframe && tf != in.FastEvent.Timeframe {
		return in.SlowSwings
	}
	return in.FastSwings
}

func (d *Detector) blockingLevel(levels []analysis.LiquidityLevel, entry float64, dir analysis.GapType) *analysis.LiquidityLevel {
	for i := range levels {
		lvl := &levels[i]
		if lvl.State != analysis.LevelActive || lvl.Score < d.blockScore {
			continue
		}
		// Opposing liquidity sits in the path of the trade.
		if dir == analysis.BullishGap && (!lvl.Type.HighSide() || lvl.Price <= entry) {
			continue
		}
		if dir == analysis.BearishGap && (lvl.Type.HighSide() || lvl.Price >= entry) {
			continue
		}
		if math.Abs(lvl.Price-entry)/entry <= d.blockDistancePct {
			return lvl
		}
	}
	return nil
}

// stopLoss goes beyond the structural critical swing with a small buffer, or
// failing that beyond the far side of the entry gap.
func (d *Detector) stopLoss(critical *analysis.Swing, gap *analysis.FairValueGap, dir analysis.GapType) float64 {
	if dir == analysis.BullishGap {
		if critical != nil && critical.Type == analysis.SwingLow && critical.Price < gap.CE {
			return critical.Price * (1 - d.stopBufferPct)
		}
		return gap.Bottom * (1 - d.stopBufferPct)
	}
	if critical != nil && critical.Type == analysis.SwingHigh && critical.Price > gap.CE {
		return critical.Price * (1 + d.stopBufferPct)
	}
	return gap.Top * (1 + d.stopBufferPct)
}

// takeProfit1 targets the nearest opposing gap's CE beyond entry.
func (d *Detector) takeProfit1(gaps []analysis.FairValueGap, entry float64, dir analysis.GapType) float64 {
	best := 0.0
	found := false
	for _, g := range gaps {
		if g.State.Terminal() {
			continue
		}
		if dir == analysis.BullishGap {
			if g.Type == analysis.BearishGap && g.CE > entry && (!found || g.CE < best) {
				best = g.CE
				found = true
			}
		} else {
			if g.Type == analysis.BullishGap && g.CE < entry && (!found || g.CE > best) {
				best = g.CE
				found = true
			}
		}
	}
	if found {
		return best
	}
	if dir == analysis.BullishGap {
		return entry * (1 + d.tp1FallbackPct)
	}
	return entry * (1 - d.tp1FallbackPct)
}

// takeProfit2 targets the nearest same-direction liquidity pool beyond TP1.
func (d *Detector) takeProfit2(levels []analysis.LiquidityLevel, entry, tp1 float64, dir analysis.GapType) float64 {
	best := 0.0
	found := false
	for _, lvl := range levels {
		if lvl.State != analysis.LevelActive {
			continue
		}
		if dir == analysis.BullishGap {
			if lvl.Type.HighSide() && lvl.Price > tp1 && (!found || lvl.Price < best) {
				best = lvl.Price
				found = true
			}
		} else {
			if !lvl.Type.HighSide() && lvl.Price < tp1 && (!found || lvl.Price > best) {
				best = lvl.Price
				found = true
			}
		}
	}
	if found {
		return best
	}
	if dir == analysis.BullishGap {
		return entry * (1 + d.tp2FallbackPct)
	}
	return entry * (1 - d.tp2FallbackPct)
}

func (d *Detector) confidence(in Inputs, sweep analysis.Sweep, gap analysis.FairValueGap, rr float64) int {
	conf := 10
	if in.Bias.BothTFAgree {
		conf = 20
	}
	conf += min(20, sweep.Score*2)
	conf += min(20, in.Displacement.Score*2)

	switch gap.Quality {
	case analysis.GapQualityHigh:
		conf += 15
	case analysis.GapQualityMedium:
		conf += 10
	default:
		conf += 5
	}

	if in.Zone.InOTE(in.Price) {
		conf += 15
	} else if in.Zone.CorrectSide(sweep.Direction()) {
		conf += 10
	}

	if rr >= 3 {
		conf += 10
	} else if rr >= 2 {
		conf += 5
	}
	if conf > 100 {
		conf = 100
	}
	return conf
}
