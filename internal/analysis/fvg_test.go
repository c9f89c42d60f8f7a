package analysis

import (
	"testing"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

func TestDetectBullishGap(t *testing.T) {
	detector := NewFVGDetector(nil)

	candles := []market.Candle{
		mkCandle(0, 95, 100, 94, 98),
		mkCandle(1, 98, 105, 97, 104),
		mkCandle(2, 104, 108, 101, 106), // low 101 > first high 100
	}

	gaps := detector.Detect(candles)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}

	g := gaps[0]
	if g.Type != BullishGap {
		t.Errorf("type = %s, want BULLISH", g.Type)
	}
	if g.Bottom != 100 || g.Top != 101 {
		t.Errorf("gap bounds = [%f, %f], want [100, 101]", g.Bottom, g.Top)
	}
	if g.CE != 100.5 {
		t.Errorf("ce = %f, want 100.5", g.CE)
	}
	if g.State != GapOpen {
		t.Errorf("new gap state = %s, want OPEN", g.State)
	}
}

func TestDetectBearishGap(t *testing.T) {
	detector := NewFVGDetector(nil)

	candles := []market.Candle{
		mkCandle(0, 105, 106, 100, 102),
		mkCandle(1, 102, 103, 95, 96),
		mkCandle(2, 96, 99, 92, 94), // high 99 < first low 100
	}

	gaps := detector.Detect(candles)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}

	g := gaps[0]
	if g.Type != BearishGap {
		t.Errorf("type = %s, want BEARISH", g.Type)
	}
	if g.Bottom != 99 || g.Top != 100 {
		t.Errorf("gap bounds = [%f, %f], want [99, 100]", g.Bottom, g.Top)
	}
}

func TestGapInvariants(t *testing.T) {
	detector := NewFVGDetector(nil)

	// A mixed tape with several imbalances in both directions.
	candles := []market.Candle{
		mkCandle(0, 100, 101, 99, 100),
		mkCandle(1, 100, 106, 100, 105),
		mkCandle(2, 105, 108, 103, 107),
		mkCandle(3, 107, 107.5, 104, 105),
		mkCandle(4, 105, 105.5, 99, 100),
		mkCandle(5, 100, 101, 96, 97),
	}

	for _, g := range detector.Detect(candles) {
		if g.Top <= g.Bottom {
			t.Errorf("gap %s: top %f must exceed bottom %f", g.ID, g.Top, g.Bottom)
		}
		if want := (g.Top + g.Bottom) / 2; g.CE != want {
			t.Errorf("gap %s: ce = %f, want midpoint %f", g.ID, g.CE, want)
		}
	}
}

func TestDetectNoGapOnOverlap(t *testing.T) {
	detector := NewFVGDetector(nil)

	candles := []market.Candle{
		mkCandle(0, 95, 100, 94, 98),
		mkCandle(1, 98, 102, 97, 100),
		mkCandle(2, 100, 104, 99, 102),
	}

	if gaps := detector.Detect(candles); len(gaps) != 0 {
		t.Errorf("expected no gaps for overlapping candles, got %d", len(gaps))
	}
}

func TestGapDeterministicIdentity(t *testing.T) {
	detector := NewFVGDetector(nil)

	candles := []market.Candle{
		mkCandle(0, 95, 100, 94, 98),
		mkCandle(1, 98, 105, 97, 104),
		mkCandle(2, 104, 108, 101, 106),
	}

	first := detector.Detect(candles)
	second := detector.Detect(candles)
	if first[0].ID != second[0].ID {
		t.Errorf("repeated detection must yield the same ID: %s vs %s", first[0].ID, second[0].ID)
	}

	merged := MergeGaps(first, second)
	if len(merged) != 1 {
		t.Errorf("merge of duplicate detections should keep 1 gap, got %d", len(merged))
	}
}

func TestGapStateProgression(t *testing.T) {
	g := FairValueGap{
		Time:   testBase,
		Type:   BullishGap,
		Top:    101,
		Bottom: 100,
		CE:     100.5,
		State:  GapOpen,
	}

	gaps := []FairValueGap{g}

	// Wick into the upper half only.
	UpdateGapStates(gaps, []market.Candle{mkCandle(1, 102, 103, 100.8, 102)})
	if gaps[0].State != GapPartiallyFilled {
		t.Fatalf("state = %s, want PARTIALLY_FILLED", gaps[0].State)
	}

	// Wick to consequent encroachment.
	UpdateGapStates(gaps, []market.Candle{mkCandle(2, 102, 103, 100.4, 102)})
	if gaps[0].State != GapCETouched {
		t.Fatalf("state = %s, want CE_TOUCHED", gaps[0].State)
	}

	// Wick fully through, closing back above.
	UpdateGapStates(gaps, []market.Candle{mkCandle(3, 102, 103, 99.9, 102)})
	if gaps[0].State != GapFilled {
		t.Fatalf("state = %s, want FILLED", gaps[0].State)
	}
}

func TestGapViolationOverrides(t *testing.T) {
	gaps := []FairValueGap{{
		Time:   testBase,
		Type:   BullishGap,
		Top:    101,
		Bottom: 100,
		CE:     100.5,
		State:  GapPartiallyFilled,
	}}

	// A close below the gap bottom violates it from any live state.
	UpdateGapStates(gaps, []market.Candle{mkCandle(1, 100.8, 100.9, 98, 98.5)})
	if gaps[0].State != GapViolated {
		t.Fatalf("state = %s, want VIOLATED", gaps[0].State)
	}

	// Terminal: later candles cannot move it.
	UpdateGapStates(gaps, []market.Candle{mkCandle(2, 102, 103, 100.4, 102)})
	if gaps[0].State != GapViolated {
		t.Errorf("violated gap must stay violated, got %s", gaps[0].State)
	}
}

func TestPruneGaps(t *testing.T) {
	now := testBase.Add(30 * time.Hour)
	gaps := []FairValueGap{
		{ID: "old", Time: testBase, State: GapOpen},
		{ID: "filled", Time: now.Add(-time.Hour), State: GapFilled},
		{ID: "live", Time: now.Add(-time.Hour), State: GapOpen},
	}

	kept := PruneGaps(gaps, now)
	if len(kept) != 1 || kept[0].ID != "live" {
		t.Errorf("expected only the live recent gap to survive, got %+v", kept)
	}
}

func TestSelectEntryGap(t *testing.T) {
	gaps := []FairValueGap{
		{ID: "a", Time: testBase, Type: BullishGap, State: GapOpen, Quality: GapQualityHigh},
		{ID: "b", Time: testBase.Add(time.Hour), Type: BullishGap, State: GapPartiallyFilled, Quality: GapQualityMedium},
		{ID: "c", Time: testBase.Add(2 * time.Hour), Type: BullishGap, State: GapOpen, Quality: GapQualityLow},
		{ID: "d", Time: testBase.Add(3 * time.Hour), Type: BearishGap, State: GapOpen, Quality: GapQualityHigh},
		{ID: "e", Time: testBase.Add(4 * time.Hour), Type: BullishGap, State: GapFilled, Quality: GapQualityHigh},
	}

	got := SelectEntryGap(gaps, BullishGap)
	if got == nil || got.ID != "b" {
		t.Fatalf("expected most recent eligible bullish gap %q, got %+v", "b", got)
	}

	if got := SelectEntryGap(gaps[:0], BullishGap); got != nil {
		t.Errorf("no gaps should select nil, got %+v", got)
	}
}
