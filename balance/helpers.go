package balance

import (
	"sort"
	"time"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/journal"
)

// OpenTickersAt returns the sorted tickers with a position at the close of date.
func OpenTickersAt(trades []journal.Trade, date time.Time) []string {
	set := map[string]bool{}
	for _, t := range trades {
		if OpenOn(t, date) {
			set[t.Ticker] = true
		}
	}
	return sortedKeys(set)
}

// OpenTrades returns the trades that still hold shares today.
func OpenTrades(trades []journal.Trade) []journal.Trade {
	var out []journal.Trade
	for _, t := range trades {
		if t.Status == journal.StatusClosed {
			continue
		}
		if sharesHeld(t, time.Time{}) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// EarliestAffectedDate is the first day whose balance depends on the trade:
// the smallest of its entry, exit and trim dates.
func EarliestAffectedDate(t journal.Trade) time.Time {
	earliest := calendar.Truncate(t.EntryDate)
	if !t.ExitDate.IsZero() {
		earliest = calendar.Min(earliest, calendar.Truncate(t.ExitDate))
	}
	for _, tr := range t.TrimHistory {
		earliest = calendar.Min(earliest, calendar.Truncate(tr.Date))
	}
	return earliest
}

// EarliestEntry returns the first entry day across trades, or false when
// there are none.
func EarliestEntry(trades []journal.Trade) (time.Time, bool) {
	if len(trades) == 0 {
		return time.Time{}, false
	}
	days := make([]time.Time, 0, len(trades))
	for _, t := range trades {
		days = append(days, calendar.Truncate(t.EntryDate))
	}
	sort.Slice(days, func(a, b int) bool { return days[a].Before(days[b]) })
	return days[0], true
}
