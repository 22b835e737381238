package prices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/equity/calendar"
)

// DefaultLookbackDays is how far back a close is searched when the day
// itself has none, which covers exchange holidays.
const DefaultLookbackDays = 5

type span struct {
	from, to time.Time
}

func (s span) covers(d time.Time) bool {
	return !d.Before(s.from) && !d.After(s.to)
}

// History keeps every close fetched so far along with the span each
// ticker's fetch covered, so a ticker is only fetched again when a day
// outside that span is needed.
type History struct {
	fetch    Fetcher
	lookback int
	now      func() time.Time

	mu     sync.Mutex
	closes map[string]map[string]float64
	spans  map[string]span
}

func NewHistory(f Fetcher, lookbackDays int, now func() time.Time) *History {
	if lookbackDays < 0 {
		lookbackDays = DefaultLookbackDays
	}
	if now == nil {
		now = time.Now
	}
	return &History{
		fetch:    f,
		lookback: lookbackDays,
		now:      now,
		closes:   map[string]map[string]float64{},
		spans:    map[string]span{},
	}
}

// Ensure fetches the tickers whose history does not already cover every day
// listed for them and returns the tickers it asked the provider for.
func (h *History) Ensure(ctx context.Context, need map[string][]time.Time) []string {
	var stale []string
	var earliest time.Time

	h.mu.Lock()
	for ticker, days := range need {
		sp, ok := h.spans[ticker]
		for _, d := range days {
			if ok && sp.covers(d) {
				continue
			}
			stale = append(stale, ticker)
			if earliest.IsZero() || d.Before(earliest) {
				earliest = d
			}
			break
		}
	}
	h.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}
	sort.Strings(stale)
	h.Refresh(ctx, stale, earliest)
	return stale
}

// Refresh fetches tickers from the provider regardless of what is held,
// asking for enough history to reach back to from. A ticker the provider
// does not return keeps whatever it had before.
func (h *History) Refresh(ctx context.Context, tickers []string, from time.Time) {
	if len(tickers) == 0 {
		return
	}
	today := calendar.Truncate(h.now().UTC())
	first := calendar.Truncate(from).AddDate(0, 0, -h.lookback)
	window := int(today.Sub(first).Hours()/24) + 1
	if window < 1 {
		window = 1
	}

	got := h.fetch.Fetch(ctx, tickers, window)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ticker, closes := range got {
		m := h.closes[ticker]
		if m == nil {
			m = make(map[string]float64, len(closes))
			h.closes[ticker] = m
		}
		for k, v := range closes {
			m[k] = v
		}
		sp := span{from: first, to: today}
		if prev, ok := h.spans[ticker]; ok && prev.from.Before(sp.from) {
			sp.from = prev.from
		}
		h.spans[ticker] = sp
	}
}

// Close returns the ticker's close for day, or the most recent close within
// the lookback window before it.
func (h *History) Close(ticker string, day time.Time) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	closes := h.closes[ticker]
	if closes == nil {
		return 0, false
	}
	d := calendar.Truncate(day)
	for i := 0; i <= h.lookback; i++ {
		if p, ok := closes[calendar.Key(d.AddDate(0, 0, -i))]; ok {
			return p, true
		}
	}
	return 0, false
}

// PricesOn returns the resolvable closes of tickers for day.
func (h *History) PricesOn(day time.Time, tickers []string) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if p, ok := h.Close(t, day); ok {
			out[t] = p
		}
	}
	return out
}

// Forget drops everything held, so the next Ensure refetches.
func (h *History) Forget() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes = map[string]map[string]float64{}
	h.spans = map[string]span{}
}
