package market

import (
	"testing"
	"time"
)

func nyTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2025, 6, 4, hour, min, 0, 0, loc)
}

func TestWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		hour   int
		min    int
		want   bool
	}{
		{"inside plain window", Window{3, 0, 6, 0}, 4, 30, true},
		{"start is inclusive", Window{3, 0, 6, 0}, 3, 0, true},
		{"end is exclusive", Window{3, 0, 6, 0}, 6, 0, false},
		{"before window", Window{3, 0, 6, 0}, 2, 59, false},
		{"wrapping window evening side", Window{20, 0, 0, 0}, 22, 0, true},
		{"wrapping window morning side", Window{20, 0, 2, 0}, 1, 30, true},
		{"wrapping window outside", Window{20, 0, 0, 0}, 12, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := time.Date(2025, 6, 4, tt.hour, tt.min, 0, 0, time.UTC)
			if got := tt.window.Contains(at); got != tt.want {
				t.Errorf("Contains(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
			}
		})
	}
}

func TestSessionAt(t *testing.T) {
	cal, err := NewCalendar("America/New_York")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	tests := []struct {
		hour, min int
		want      Session
	}{
		{21, 0, SessionAsian},
		{3, 0, SessionLondon},
		{9, 30, SessionNYMorning},
		{14, 0, SessionNYAfternoon},
		{18, 0, SessionOffHours},
	}
	for _, tt := range tests {
		if got := cal.SessionAt(nyTime(t, tt.hour, tt.min)); got != tt.want {
			t.Errorf("SessionAt(%02d:%02d) = %s, want %s", tt.hour, tt.min, got, tt.want)
		}
	}
}

func TestKillzonesAndNoTrade(t *testing.T) {
	cal, err := NewCalendar("America/New_York")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}

	if !cal.InKillzone(nyTime(t, 4, 0)) {
		t.Error("expected London open killzone at 04:00")
	}
	if !cal.InKillzone(nyTime(t, 9, 0)) {
		t.Error("expected New York killzone at 09:00")
	}
	if cal.InKillzone(nyTime(t, 13, 0)) {
		t.Error("13:00 should be outside every killzone")
	}

	if !cal.InNoTradeWindow(nyTime(t, 22, 0)) {
		t.Error("expected Asian no-trade window at 22:00")
	}
	if cal.InNoTradeWindow(nyTime(t, 10, 0)) {
		t.Error("10:00 should be tradeable")
	}
}

func TestPastTimeCutoff(t *testing.T) {
	cal, err := NewCalendar("America/New_York")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	if cal.PastTimeCutoff(nyTime(t, 15, 44), 15, 45) {
		t.Error("15:44 should be before the 15:45 cutoff")
	}
	if !cal.PastTimeCutoff(nyTime(t, 15, 45), 15, 45) {
		t.Error("cutoff minute itself should trigger")
	}
}

func TestDayOpenAndWeekStart(t *testing.T) {
	cal, err := NewCalendar("America/New_York")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}

	open := cal.DayOpen(nyTime(t, 14, 30))
	if open.Hour() != 0 || open.Minute() != 0 || open.Day() != 4 {
		t.Errorf("DayOpen = %v, want local midnight June 4", open)
	}

	monday := time.Date(2025, 6, 2, 12, 0, 0, 0, cal.Location())
	if !cal.IsWeekStart(monday) {
		t.Error("Monday should start the trading week")
	}
	if cal.IsWeekStart(nyTime(t, 12, 0)) {
		t.Error("Wednesday should not start the trading week")
	}
}

func TestNewCalendarRejectsBadZone(t *testing.T) {
	if _, err := NewCalendar("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
