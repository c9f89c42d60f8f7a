package analysis

import (
	"math"
	"testing"
)

func TestCalcZone(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		wantZone  Zone
		wantDepth float64
	}{
		{"at equilibrium", 100, ZonePremium, 0},
		{"mid premium", 105, ZonePremium, 0.5},
		{"at high", 110, ZonePremium, 1},
		{"mid discount", 95, ZoneDiscount, 0.5},
		{"at low", 90, ZoneDiscount, 1},
		{"beyond high clamps", 120, ZonePremium, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := CalcZone(110, 90, tt.price)
			if z.Zone != tt.wantZone {
				t.Errorf("zone = %s, want %s", z.Zone, tt.wantZone)
			}
			if math.Abs(z.Depth-tt.wantDepth) > 1e-9 {
				t.Errorf("depth = %f, want %f", z.Depth, tt.wantDepth)
			}
		})
	}
}

func TestCalcZoneEquilibrium(t *testing.T) {
	z := CalcZone(110, 90, 95)
	if z.Equilibrium != 100 {
		t.Errorf("equilibrium = %f, want 100", z.Equilibrium)
	}
}

func TestOTEBand(t *testing.T) {
	z := CalcZone(110, 90, 95)

	// 20-point range: band is [90+4.2, 90+7.64].
	if math.Abs(z.OTELow-94.2) > 1e-9 || math.Abs(z.OTEHigh-97.64) > 1e-9 {
		t.Fatalf("ote band = [%f, %f], want [94.2, 97.64]", z.OTELow, z.OTEHigh)
	}
	if !z.InOTE(95) {
		t.Error("95 should be inside the OTE band")
	}
	if z.InOTE(98) {
		t.Error("98 should be outside the OTE band")
	}
}

func TestCorrectSide(t *testing.T) {
	if !CalcZone(110, 90, 95).CorrectSide(BullishGap) {
		t.Error("discount zone should be correct for longs")
	}
	if CalcZone(110, 90, 105).CorrectSide(BullishGap) {
		t.Error("premium zone should be wrong for longs")
	}
	if !CalcZone(110, 90, 105).CorrectSide(BearishGap) {
		t.Error("premium zone should be correct for shorts")
	}
}

func TestCalcZoneDegenerateRange(t *testing.T) {
	z := CalcZone(100, 100, 100)
	if z.Depth != 0 {
		t.Errorf("degenerate range depth = %f, want 0", z.Depth)
	}
}
