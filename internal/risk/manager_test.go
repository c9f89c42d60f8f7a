package risk

import (
	"math"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC) // a Wednesday

func TestKillSwitchBlocksEverything(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	m.RecordClosure(-1500, testNow) // equity 8500, peak 10000: 15% drawdown

	if !m.KillSwitchActive() {
		t.Fatal("15% drawdown should trip the kill switch")
	}
	ok, reason := m.Allow(10, testNow)
	if ok {
		t.Fatal("kill switch should block regardless of other gates")
	}
	if !strings.Contains(reason, "kill switch") {
		t.Errorf("reason = %q, want a kill-switch block", reason)
	}
}

func TestWeeklyLossCap(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	m.RecordClosure(-250, testNow)
	m.RecordClosure(-260, testNow.Add(time.Hour))

	// -510 on the week exceeds 5% of the 10000 peak.
	ok, reason := m.Allow(3, testNow.Add(2*time.Hour))
	if ok {
		t.Fatal("weekly loss past 5% of peak should block")
	}
	if !strings.Contains(reason, "weekly") {
		t.Errorf("reason = %q, want a weekly-cap block", reason)
	}

	// A new week clears the cap.
	nextWeek := testNow.AddDate(0, 0, 7)
	if ok, reason := m.Allow(3, nextWeek); !ok {
		t.Fatalf("new week should reset the weekly cap: %s", reason)
	}
}

func TestDailyLossCap(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	m.RecordClosure(-200, testNow) // 2% of 9800 is 196, already past

	ok, reason := m.Allow(3, testNow.Add(time.Hour))
	if ok {
		t.Fatal("daily loss past 2% of equity should block")
	}
	if !strings.Contains(reason, "daily") {
		t.Errorf("reason = %q, want a daily-cap block", reason)
	}

	// Next day trades again.
	if ok, reason := m.Allow(3, testNow.AddDate(0, 0, 1)); !ok {
		t.Fatalf("new day should reset the daily cap: %s", reason)
	}
}

func TestMaxTradesPerDay(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	m.RecordOpen(testNow)

	ok, reason := m.Allow(3, testNow.Add(time.Hour))
	if ok {
		t.Fatal("second trade of the day should block")
	}
	if !strings.Contains(reason, "max trades") {
		t.Errorf("reason = %q, want a trade-count block", reason)
	}
	if ok, _ := m.Allow(3, testNow.AddDate(0, 0, 1)); !ok {
		t.Fatal("trade slot should refresh on a new day")
	}
}

func TestMinRiskReward(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000, MinRiskReward: 2}, testNow)
	if ok, reason := m.Allow(1.5, testNow); ok {
		t.Fatal("sub-minimum R:R should block")
	} else if !strings.Contains(reason, "risk:reward") {
		t.Errorf("reason = %q, want an R:R block", reason)
	}
	if ok, reason := m.Allow(2.5, testNow); !ok {
		t.Fatalf("good R:R should pass: %s", reason)
	}
}

func TestRiskPercentStreak(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	if got := m.RiskPercent(); got != 0.01 {
		t.Errorf("no losses risk = %f, want 0.01", got)
	}
	m.RecordClosure(-50, testNow)
	if got := m.RiskPercent(); got != 0.005 {
		t.Errorf("one loss risk = %f, want 0.005", got)
	}
	m.RecordClosure(-50, testNow)
	if got := m.RiskPercent(); got != 0.0025 {
		t.Errorf("two losses risk = %f, want 0.0025", got)
	}
	m.RecordClosure(-50, testNow)
	if got := m.RiskPercent(); got != 0.0025 {
		t.Errorf("streak floor risk = %f, want 0.0025", got)
	}
	m.RecordClosure(80, testNow)
	if got := m.RiskPercent(); got != 0.01 {
		t.Errorf("win should reset streak risk to 0.01, got %f", got)
	}
}

func TestPositionSize(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000, Leverage: 5}, testNow)
	m.RecordClosure(-50, testNow) // one loss: 0.5% risk, equity 9950

	// Entry 100, stop 99: 1% stop distance.
	// size = 9950*0.005/0.01*5 = 24875, under the 49750 cap.
	got := m.PositionSize(100, 99)
	want := 9950 * 0.005 / 0.01 * 5
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("size = %f, want %f", got, want)
	}
}

func TestPositionSizeCappedByLeverage(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000, Leverage: 5}, testNow)

	// 0.1% stop distance would give 500k notional, capped at 50k.
	got := m.PositionSize(100, 99.9)
	if math.Abs(got-50000) > 1e-6 {
		t.Errorf("size = %f, want leverage cap 50000", got)
	}
}

func TestPositionSizeDegenerate(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	if m.PositionSize(100, 100) != 0 {
		t.Error("zero stop distance should size to zero")
	}
	if m.PositionSize(0, 99) != 0 {
		t.Error("zero entry should size to zero")
	}
}

func TestPeakOnlyRises(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000}, testNow)
	m.RecordClosure(500, testNow)
	m.RecordClosure(-200, testNow)

	s := m.State()
	if s.PeakEquity != 10500 {
		t.Errorf("peak = %f, want 10500", s.PeakEquity)
	}
	if s.CurrentEquity != 10300 {
		t.Errorf("equity = %f, want 10300", s.CurrentEquity)
	}
	wantDD := (10500.0 - 10300.0) / 10500.0
	if math.Abs(s.DrawdownPct-wantDD) > 1e-9 {
		t.Errorf("drawdown = %f, want %f", s.DrawdownPct, wantDD)
	}
}

func TestRestoreRehydratesState(t *testing.T) {
	m := NewManager(Config{InitialBalance: 10000, MaxTradesPerDay: 1}, testNow)
	m.Restore(Snapshot{
		PeakEquity:        12000,
		CurrentEquity:     11000,
		DailyPnL:          -150,
		WeeklyPnL:         -400,
		TradesToday:       1,
		ConsecutiveLosses: 2,
	}, testNow)

	s := m.State()
	if s.PeakEquity != 12000 || s.CurrentEquity != 11000 {
		t.Errorf("equity = %f/%f, want 12000/11000", s.PeakEquity, s.CurrentEquity)
	}
	if s.TradesToday != 1 || s.ConsecutiveLosses != 2 {
		t.Errorf("counters = %d/%d, want 1/2", s.TradesToday, s.ConsecutiveLosses)
	}

	// Day limit already spent before the restart.
	if ok, reason := m.Allow(3, testNow); ok {
		t.Error("restored trade count should block a second trade today")
	} else if reason == "" {
		t.Error("expected a block reason")
	}

	// Zero-valued equity fields must not wipe the balances.
	m.Restore(Snapshot{TradesToday: 0}, testNow)
	if s := m.State(); s.PeakEquity != 12000 {
		t.Errorf("peak = %f, want 12000 preserved", s.PeakEquity)
	}
}
