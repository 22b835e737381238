// Package curve builds the account's equity curve: one point per business
// day from the first trade through today, backed by the snapshot cache.
package curve

import (
	"time"

	"github.com/rustyeddy/equity/snapshot"
)

// Point is the balance at the close of one business day.
type Point struct {
	Date            time.Time
	Balance         float64
	RealizedBalance float64
	UnrealizedPnL   float64
	CashFlow        float64
	// DayPnL is the change in balance since the previous point, net of
	// deposits and withdrawals made in between.
	DayPnL         float64
	Source         snapshot.Source
	Complete       bool
	MissingTickers []string
	// Synthetic marks a starting-balance point added so a line can be drawn.
	Synthetic bool
}

type Curve struct {
	Points  []Point
	BuiltAt time.Time
}

// Range limits the points Build returns. A zero bound is open. Build still
// returns two points for a range holding fewer.
type Range struct {
	Start, End time.Time
}

func (c Curve) Len() int { return len(c.Points) }

func (c Curve) Empty() bool { return len(c.Points) == 0 }

// At returns the point dated exactly day.
func (c Curve) At(day time.Time) (Point, bool) {
	for _, p := range c.Points {
		if p.Date.Equal(day) {
			return p, true
		}
	}
	return Point{}, false
}

// Last returns the most recent point.
func (c Curve) Last() (Point, bool) {
	if len(c.Points) == 0 {
		return Point{}, false
	}
	return c.Points[len(c.Points)-1], true
}

// Within returns the points inside r.
func (c Curve) Within(r Range) Curve {
	if r.Start.IsZero() && r.End.IsZero() {
		return c
	}
	out := Curve{BuiltAt: c.BuiltAt}
	for _, p := range c.Points {
		if !r.Start.IsZero() && p.Date.Before(r.Start) {
			continue
		}
		if !r.End.IsZero() && p.Date.After(r.End) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// startPoint is a synthetic point holding only the starting balance.
func startPoint(d time.Time, bal float64) Point {
	return Point{
		Date:            d,
		Balance:         bal,
		RealizedBalance: bal,
		Complete:        true,
		Synthetic:       true,
	}
}

func pointFromSnapshot(day time.Time, s snapshot.Snapshot) Point {
	return Point{
		Date:            day,
		Balance:         s.Balance,
		RealizedBalance: s.RealizedBalance,
		UnrealizedPnL:   s.UnrealizedPnL,
		CashFlow:        s.CashFlow,
		Source:          s.Source,
		Complete:        s.Complete,
		MissingTickers:  s.MissingTickers,
	}
}
