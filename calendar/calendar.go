// Package calendar holds the date logic for the balance curve: business
// days, ISO day keys, and the trading day of an instant.
//
// A day is represented as a time.Time at 00:00 UTC. Keys are "2006-01-02".
package calendar

import (
	"fmt"
	"iter"
	"time"
	_ "time/tzdata" // market timezones resolve without host tzdata
)

// Layout is the ISO date layout used for every day key.
const Layout = "2006-01-02"

// Calendar knows where the trading day boundary falls. Instants before the
// market open on a weekday belong to the previous business day.
type Calendar struct {
	Location   *time.Location
	OpenHour   int
	OpenMinute int
}

// Default returns a calendar for US equities: 09:30 America/New_York.
func Default() Calendar {
	return Calendar{Location: easternTime(), OpenHour: 9, OpenMinute: 30}
}

// New returns a calendar for the named timezone and "HH:MM" market open.
func New(tz, open string) (Calendar, error) {
	loc := easternTime()
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Calendar{}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}
	h, m, err := ParseOpen(open)
	if err != nil {
		return Calendar{}, err
	}
	return Calendar{Location: loc, OpenHour: h, OpenMinute: m}, nil
}

// ParseOpen parses a "HH:MM" market open time. Empty means 09:30.
func ParseOpen(s string) (int, int, error) {
	if s == "" {
		return 9, 30, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse market open %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// easternTime returns America/New_York, falling back to fixed EST if tzdata is missing.
func easternTime() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// DateOf returns the calendar date of t in the market location.
func (c Calendar) DateOf(t time.Time) time.Time {
	l := t.In(c.location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// TradingDayFor returns the trading day an instant belongs to. The day
// starts at market open, not midnight, so a closing price saved the next
// morning is still keyed to the session it closes. Weekend instants belong
// to the preceding Friday.
func (c Calendar) TradingDayFor(t time.Time) time.Time {
	l := t.In(c.location())
	day := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
	if !IsBusinessDay(day) {
		return PreviousBusinessDay(day)
	}
	open := time.Date(l.Year(), l.Month(), l.Day(), c.OpenHour, c.OpenMinute, 0, 0, c.location())
	if l.Before(open) {
		return PreviousBusinessDay(day)
	}
	return day
}

// Truncate drops the clock part of t, keeping its own Y-M-D.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Key formats a day as its ISO key.
func Key(d time.Time) string {
	return d.Format(Layout)
}

// ParseKey parses an ISO day key.
func ParseKey(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// IsBusinessDay reports whether d falls Monday through Friday.
func IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// NextBusinessDay returns the first business day strictly after d.
func NextBusinessDay(d time.Time) time.Time {
	n := Truncate(d).AddDate(0, 0, 1)
	for !IsBusinessDay(n) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}

// PreviousBusinessDay returns the last business day strictly before d.
func PreviousBusinessDay(d time.Time) time.Time {
	p := Truncate(d).AddDate(0, 0, -1)
	for !IsBusinessDay(p) {
		p = p.AddDate(0, 0, -1)
	}
	return p
}

// BusinessDays yields every business day in [start, end] in ascending order.
// The sequence can be ranged over any number of times.
func BusinessDays(start, end time.Time) iter.Seq[time.Time] {
	start, end = Truncate(start), Truncate(end)
	return func(yield func(time.Time) bool) {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !IsBusinessDay(d) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// BusinessDaysBetween returns the business days in [start, end], inclusive.
func BusinessDaysBetween(start, end time.Time) []time.Time {
	var out []time.Time
	for d := range BusinessDays(start, end) {
		out = append(out, d)
	}
	return out
}

// Min returns the earlier of two days.
func Min(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
