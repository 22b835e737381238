package prices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	data    map[string]map[string]float64
	fail    map[string]bool // batches containing one of these tickers fail
	calls   [][]string
	windows []int
}

func (f *fakeProvider) BatchFetchHistorical(_ context.Context, tickers []string, windowDays int) (map[string]map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), tickers...))
	f.windows = append(f.windows, windowDays)

	out := map[string]map[string]float64{}
	for _, t := range tickers {
		if f.fail[t] {
			return nil, errors.New("provider down")
		}
		if c, ok := f.data[t]; ok {
			out[t] = c
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBatcherSplitsSequentially(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{data: map[string]map[string]float64{
		"A": {"2024-01-02": 1}, "B": {"2024-01-02": 2}, "C": {"2024-01-02": 3},
		"D": {"2024-01-02": 4}, "E": {"2024-01-02": 5},
	}}
	b := NewBatcher(p, 2, 0, nil)

	got := b.Fetch(context.Background(), []string{"E", "A", "C", "B", "D", "A"}, 30)

	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}, p.calls)
	assert.Len(t, got, 5)
	assert.Equal(t, 3.0, got["C"]["2024-01-02"])
	assert.Equal(t, []int{30, 30, 30}, p.windows)
}

func TestBatcherWaitsBetweenBatches(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	b := NewBatcher(p, 1, 40*time.Millisecond, nil)

	start := time.Now()
	b.Fetch(context.Background(), []string{"A", "B", "C"}, 5)
	elapsed := time.Since(start)

	assert.Len(t, p.calls, 3)
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestBatcherFailedBatchIsMissing(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		data: map[string]map[string]float64{"A": {"2024-01-02": 1}, "C": {"2024-01-02": 3}},
		fail: map[string]bool{"B": true},
	}
	b := NewBatcher(p, 1, 0, nil)

	got := b.Fetch(context.Background(), []string{"A", "B", "C"}, 5)
	assert.Len(t, p.calls, 3)
	assert.Contains(t, got, "A")
	assert.NotContains(t, got, "B")
	assert.Contains(t, got, "C")
}

func TestBatcherStopsOnCancel(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	b := NewBatcher(p, 1, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	b.Fetch(ctx, []string{"A"}, 5) // first token is free
	cancel()
	b.Fetch(ctx, []string{"B", "C"}, 5)

	assert.Len(t, p.calls, 1)
}

func TestHistoryFetchesOnlyUncovered(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{data: map[string]map[string]float64{
		"AAPL": {"2024-01-02": 185, "2024-01-03": 184},
		"MSFT": {"2024-01-02": 370},
	}}
	now := func() time.Time { return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC) }
	h := NewHistory(NewBatcher(p, 10, 0, nil), 5, now)
	ctx := context.Background()

	fetched := h.Ensure(ctx, map[string][]time.Time{
		"AAPL": {day(2024, 1, 2), day(2024, 1, 3)},
		"MSFT": {day(2024, 1, 2)},
	})
	assert.Equal(t, []string{"AAPL", "MSFT"}, fetched)
	require.Len(t, p.calls, 1)
	// Jan 10 back to Dec 28 (Jan 2 less five days of lookback) inclusive.
	assert.Equal(t, []int{14}, p.windows)

	fetched = h.Ensure(ctx, map[string][]time.Time{"AAPL": {day(2024, 1, 5)}})
	assert.Empty(t, fetched)
	assert.Len(t, p.calls, 1)

	fetched = h.Ensure(ctx, map[string][]time.Time{"AAPL": {day(2023, 12, 1)}})
	assert.Equal(t, []string{"AAPL"}, fetched)
	assert.Len(t, p.calls, 2)
}

func TestHistoryUnresolvedTickerIsRetried(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{data: map[string]map[string]float64{}}
	now := func() time.Time { return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC) }
	h := NewHistory(NewBatcher(p, 10, 0, nil), 5, now)
	need := map[string][]time.Time{"XYZ": {day(2024, 1, 2)}}

	h.Ensure(context.Background(), need)
	h.Ensure(context.Background(), need)
	assert.Len(t, p.calls, 2)
}

func TestHistoryCloseLooksBack(t *testing.T) {
	t.Parallel()

	// 2024-01-15 is a market holiday; the previous close is Jan 12.
	p := &fakeProvider{data: map[string]map[string]float64{"AAPL": {"2024-01-12": 186, "2024-01-16": 183}}}
	now := func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }
	h := NewHistory(NewBatcher(p, 10, 0, nil), 5, now)
	h.Ensure(context.Background(), map[string][]time.Time{"AAPL": {day(2024, 1, 12)}})

	c, ok := h.Close("AAPL", day(2024, 1, 15))
	require.True(t, ok)
	assert.Equal(t, 186.0, c)

	c, ok = h.Close("AAPL", day(2024, 1, 16))
	require.True(t, ok)
	assert.Equal(t, 183.0, c)

	_, ok = h.Close("AAPL", day(2024, 1, 5))
	assert.False(t, ok)
	_, ok = h.Close("MSFT", day(2024, 1, 16))
	assert.False(t, ok)

	assert.Equal(t, map[string]float64{"AAPL": 186}, h.PricesOn(day(2024, 1, 15), []string{"AAPL", "MSFT"}))

	h.Forget()
	_, ok = h.Close("AAPL", day(2024, 1, 16))
	assert.False(t, ok)
}
