package market

import (
	"fmt"
	"time"
)

// Session identifies the intraday trading session in exchange-local time.
type Session string

const (
	SessionAsian       Session = "ASIAN"
	SessionLondon      Session = "LONDON"
	SessionNYMorning   Session = "NY_MORNING"
	SessionNYAfternoon Session = "NY_AFTERNOON"
	SessionOffHours    Session = "OFF_HOURS"
)

// Window is a fixed local-time window, possibly wrapping past midnight.
type Window struct {
	StartHour, StartMin int
	EndHour, EndMin     int
}

// Contains reports whether the local time t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	mins := t.Hour()*60 + t.Minute()
	start := w.StartHour*60 + w.StartMin
	end := w.EndHour*60 + w.EndMin
	if start <= end {
		return mins >= start && mins < end
	}
	// Wraps midnight.
	return mins >= start || mins < end
}

// Calendar resolves sessions and killzones against a fixed local-time
// schedule. Windows are evaluated in the calendar's location, so DST shifts
// are handled by the zone database.
type Calendar struct {
	loc          *time.Location
	asian        Window
	london       Window
	nyMorning    Window
	nyAfternoon  Window
	killzones    []Window
	noTradeZones []Window
}

// NewCalendar builds a calendar for the named IANA zone with the default
// session schedule (New York trading-desk convention).
func NewCalendar(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("loading session timezone %q: %w", zone, err)
	}
	return &Calendar{
		loc:         loc,
		asian:       Window{20, 0, 0, 0},
		london:      Window{2, 0, 5, 0},
		nyMorning:   Window{7, 0, 12, 0},
		nyAfternoon: Window{12, 0, 16, 0},
		killzones: []Window{
			{3, 0, 6, 0},    // London open
			{8, 30, 11, 30}, // New York open
		},
		noTradeZones: []Window{
			{20, 0, 0, 0}, // Asian range building
		},
	}, nil
}

// Location returns the calendar's local zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// SessionAt returns the session active at t.
func (c *Calendar) SessionAt(t time.Time) Session {
	lt := t.In(c.loc)
	switch {
	case c.asian.Contains(lt):
		return SessionAsian
	case c.london.Contains(lt):
		return SessionLondon
	case c.nyMorning.Contains(lt):
		return SessionNYMorning
	case c.nyAfternoon.Contains(lt):
		return SessionNYAfternoon
	default:
		return SessionOffHours
	}
}

// InKillzone reports whether t falls inside a tradeable killzone.
func (c *Calendar) InKillzone(t time.Time) bool {
	lt := t.In(c.loc)
	for _, w := range c.killzones {
		if w.Contains(lt) {
			return true
		}
	}
	return false
}

// InNoTradeWindow reports whether t falls inside a configured no-trade window.
func (c *Calendar) InNoTradeWindow(t time.Time) bool {
	lt := t.In(c.loc)
	for _, w := range c.noTradeZones {
		if w.Contains(lt) {
			return true
		}
	}
	return false
}

// PastTimeCutoff reports whether local time is at or past the forced-exit
// cutoff (hour:min local).
func (c *Calendar) PastTimeCutoff(t time.Time, hour, min int) bool {
	lt := t.In(c.loc)
	return lt.Hour()*60+lt.Minute() >= hour*60+min
}

// DayOpen returns the local midnight opening the trading day containing t.
func (c *Calendar) DayOpen(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// IsWeekStart reports whether t falls on the first day of the trading week.
func (c *Calendar) IsWeekStart(t time.Time) bool {
	return t.In(c.loc).Weekday() == time.Monday
}
