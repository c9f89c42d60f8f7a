package analysis

import (
	"testing"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

func TestMapScoresWithinBounds(t *testing.T) {
	mapper := NewLiquidityMapper()
	now := testBase.Add(10 * 24 * time.Hour)

	swings := []Swing{
		mkSwing(0, SwingHigh, 110),
		mkSwing(1, SwingLow, 100),
		mkSwing(2, SwingHigh, 110.05), // clusters with the first high
		mkSwing(3, SwingLow, 100.04),  // clusters with the first low
		mkSwing(4, SwingHigh, 120),
	}
	daily := []market.Candle{
		{Timeframe: market.Timeframe1d, OpenTime: testBase, Open: 100, High: 112, Low: 98, Close: 105},
		{Timeframe: market.Timeframe1d, OpenTime: testBase.Add(24 * time.Hour), Open: 105, High: 115, Low: 101, Close: 108},
		{Timeframe: market.Timeframe1d, OpenTime: testBase.Add(48 * time.Hour), Open: 108, High: 118, Low: 104, Close: 110},
		{Timeframe: market.Timeframe1d, OpenTime: testBase.Add(72 * time.Hour), Open: 110, High: 121, Low: 106, Close: 112},
		{Timeframe: market.Timeframe1d, OpenTime: testBase.Add(96 * time.Hour), Open: 112, High: 119, Low: 108, Close: 111},
	}
	hi, lo := 122.0, 97.0

	levels := mapper.Map(swings, daily, &hi, &lo, now)
	if len(levels) == 0 {
		t.Fatal("expected levels from a populated swing set")
	}

	for _, l := range levels {
		if l.Score < 0 || l.Score > MaxLevelScore {
			t.Errorf("level %s@%f score %d outside [0,%d]", l.Type, l.Price, l.Score, MaxLevelScore)
		}
		if l.State != LevelActive {
			t.Errorf("freshly mapped level must be ACTIVE, got %s", l.State)
		}
	}
}

func TestMapEqualHighsCluster(t *testing.T) {
	mapper := NewLiquidityMapper()
	now := testBase.Add(time.Hour)

	swings := []Swing{
		mkSwing(0, SwingHigh, 110.00),
		mkSwing(1, SwingHigh, 110.05),
	}

	levels := mapper.Map(swings, nil, nil, nil, now)

	var eqh *LiquidityLevel
	for i := range levels {
		if levels[i].Type == LevelEQH {
			eqh = &levels[i]
		}
	}
	if eqh == nil {
		t.Fatal("expected an EQH cluster from two near-equal highs")
	}
	if eqh.Price != 110.025 {
		t.Errorf("cluster price = %f, want the average 110.025", eqh.Price)
	}
	if eqh.SwingCount != 2 {
		t.Errorf("cluster swing count = %d, want 2", eqh.SwingCount)
	}
}

func TestMergeKeepsHigherScore(t *testing.T) {
	mapper := NewLiquidityMapper()
	levels := []LiquidityLevel{
		{Price: 100.00, Type: LevelBSL, Score: 2, State: LevelActive},
		{Price: 100.02, Type: LevelEQH, Score: 7, State: LevelActive}, // within 0.05%
	}

	merged := mapper.merge(levels)
	if len(merged) != 1 {
		t.Fatalf("expected proximity merge to 1 level, got %d", len(merged))
	}
	if merged[0].Score != 7 {
		t.Errorf("merge must keep the higher score, got %d", merged[0].Score)
	}
}

func TestLevelSweepTransition(t *testing.T) {
	mapper := NewLiquidityMapper()
	now := testBase.Add(time.Hour)

	levels := []LiquidityLevel{
		{Price: 105, Type: LevelBSL, State: LevelActive, CreatedAt: testBase},
		{Price: 95, Type: LevelSSL, State: LevelActive, CreatedAt: testBase},
	}

	// One candle formed after creation trades through the high-side level.
	candles := []market.Candle{mkCandle(1, 100, 105.5, 99, 101)}
	mapper.UpdateLevelStates(levels, candles, now)

	if levels[0].State != LevelSwept {
		t.Errorf("high-side level should be SWEPT, got %s", levels[0].State)
	}
	if levels[0].SweptAt == nil {
		t.Error("swept level must record its sweep time")
	}
	if levels[1].State != LevelActive {
		t.Errorf("untouched low-side level should stay ACTIVE, got %s", levels[1].State)
	}
}

func TestLevelSweepIgnoresOlderCandles(t *testing.T) {
	mapper := NewLiquidityMapper()
	created := testBase.Add(time.Hour)

	levels := []LiquidityLevel{{Price: 105, Type: LevelBSL, State: LevelActive, CreatedAt: created}}

	// The only candle through the level predates the level.
	candles := []market.Candle{mkCandle(0, 100, 106, 99, 101)}
	mapper.UpdateLevelStates(levels, candles, created.Add(time.Hour))

	if levels[0].State != LevelActive {
		t.Errorf("candles at or before creation must not sweep, got %s", levels[0].State)
	}
}

func TestLevelExpiry(t *testing.T) {
	mapper := NewLiquidityMapper()
	levels := []LiquidityLevel{{Price: 105, Type: LevelBSL, State: LevelActive, CreatedAt: testBase}}

	mapper.UpdateLevelStates(levels, nil, testBase.Add(21*24*time.Hour))
	if levels[0].State != LevelExpired {
		t.Errorf("level older than 20 days should be EXPIRED, got %s", levels[0].State)
	}

	// Terminal: a later sweep candle cannot revive it.
	mapper.UpdateLevelStates(levels, []market.Candle{mkCandle(1, 100, 110, 99, 101)}, testBase.Add(22*24*time.Hour))
	if levels[0].State != LevelExpired {
		t.Errorf("expired level must stay EXPIRED, got %s", levels[0].State)
	}
}
