package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/equity/balance"
	"github.com/rustyeddy/equity/kvstore"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, store kvstore.Store, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c := New(store, opts...)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func complete(bal float64) Snapshot {
	return Snapshot{
		Balance:         bal,
		RealizedBalance: bal,
		StockPrices:     map[string]float64{},
		PositionsOwned:  []string{},
		Source:          SourceHistorical,
		Complete:        true,
	}
}

func incomplete(missing ...string) Snapshot {
	return Snapshot{
		Balance:         10000,
		RealizedBalance: 10000,
		StockPrices:     map[string]float64{},
		PositionsOwned:  missing,
		MissingTickers:  missing,
		Source:          SourceHistorical,
	}
}

// failingStore wraps a Memory store and fails Set on demand.
type failingStore struct {
	*kvstore.Memory
	setErr  error
	setCall int
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	f.setCall++
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

func TestFromBreakdown(t *testing.T) {
	t.Parallel()

	b := balance.Breakdown{
		RealizedBalance: 10000,
		UnrealizedPnL:   100,
		Balance:         10100,
		PositionsOwned:  []string{"AAPL"},
	}
	s := FromBreakdown(b, map[string]float64{"AAPL": 160, "MSFT": 400}, SourceHistorical, fixedNow)

	assert.Equal(t, 10100.0, s.Balance)
	assert.Equal(t, map[string]float64{"AAPL": 160}, s.StockPrices)
	assert.True(t, s.Complete)

	b.MissingTickers = []string{"AAPL"}
	s = FromBreakdown(b, nil, SourceHistorical, fixedNow)
	assert.False(t, s.Complete)
	assert.Empty(t, s.StockPrices)

	s = FromBreakdown(balance.Breakdown{RealizedBalance: 5000, Balance: 5000}, nil, SourceNoPositions, fixedNow)
	assert.NotNil(t, s.PositionsOwned)
	assert.True(t, s.Complete)
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	c := newTestCache(t, store)

	require.NoError(t, c.Save(ctx, day(2024, 1, 2), complete(10000)))
	require.NoError(t, c.Save(ctx, day(2024, 1, 3), complete(10100)))

	got, ok := c.Get(day(2024, 1, 3))
	require.True(t, ok)
	assert.Equal(t, 10100.0, got.Balance)
	assert.Equal(t, fixedNow, got.ComputedAt)

	again := newTestCache(t, store)
	assert.Equal(t, 2, again.Len())
	assert.Equal(t, []time.Time{day(2024, 1, 2), day(2024, 1, 3)}, again.Days())
	last, ok := again.LastCompleteTradingDay()
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 3), last)

	raw, _, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.EqualValues(t, SchemaVersion, doc["schemaVersion"])
	assert.Equal(t, "2024-01-03", doc["lastCompleteTradingDay"])
}

func TestRetryCounting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemory(0))
	d := day(2024, 1, 4)

	for want := 1; want <= 3; want++ {
		require.NoError(t, c.Save(ctx, d, incomplete("XYZ")))
		s, _ := c.Get(d)
		assert.Equal(t, want, s.RetryCount)
	}
	s, _ := c.Get(d)
	assert.True(t, s.Exhausted(c.MaxRetries()))
	assert.Empty(t, c.Retryable())

	require.NoError(t, c.Save(ctx, d, complete(10000)))
	s, _ = c.Get(d)
	assert.True(t, s.Complete)
	assert.Equal(t, 3, s.RetryCount)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemory(0), WithMaxRetries(2))

	require.NoError(t, c.SaveBatch(ctx, map[time.Time]Snapshot{
		day(2024, 1, 2): complete(10000),
		day(2024, 1, 3): incomplete("A"),
		day(2024, 1, 4): incomplete("B"),
	}))
	require.NoError(t, c.Save(ctx, day(2024, 1, 4), incomplete("B")))

	assert.Equal(t, []time.Time{day(2024, 1, 3)}, c.Retryable())
}

func TestFindMissingDays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemory(0))
	require.NoError(t, c.Save(ctx, day(2024, 1, 3), complete(1)))
	require.NoError(t, c.Save(ctx, day(2024, 1, 4), incomplete("X")))

	assert.True(t, c.Has(day(2024, 1, 3)))
	assert.False(t, c.Has(day(2024, 1, 4)))

	// Jan 6-7 2024 is a weekend.
	got := c.FindMissingDays(day(2024, 1, 2), day(2024, 1, 8))
	assert.Equal(t, []time.Time{day(2024, 1, 2), day(2024, 1, 4), day(2024, 1, 5), day(2024, 1, 8)}, got)
}

func TestInvalidateFrom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	c := newTestCache(t, store)
	require.NoError(t, c.SaveBatch(ctx, map[time.Time]Snapshot{
		day(2024, 1, 2): complete(1),
		day(2024, 1, 3): complete(2),
		day(2024, 1, 4): complete(3),
	}))

	n, err := c.InvalidateFrom(ctx, day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Time{day(2024, 1, 2)}, c.Days())

	last, _ := c.LastCompleteTradingDay()
	assert.Equal(t, day(2024, 1, 2), last)

	again := newTestCache(t, store)
	assert.Equal(t, 1, again.Len())

	n, err = c.InvalidateFrom(ctx, day(2025, 1, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	c := newTestCache(t, store)
	require.NoError(t, c.Save(ctx, day(2024, 1, 2), complete(1)))

	require.NoError(t, c.ClearAll(ctx))
	assert.Zero(t, c.Len())
	_, ok, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadSchemaMismatchStartsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	old := `{"schemaVersion":1,"snapshots":{"2024-01-02":{"balance":1,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":[]}}}`
	require.NoError(t, store.Set(ctx, DefaultKey, []byte(old)))

	c := newTestCache(t, store)
	assert.Zero(t, c.Len())

	raw, ok, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"schemaVersion":2,"snapshots":{}}`, string(raw))
}

func TestLoadGarbageStartsEmpty(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory(0)
	require.NoError(t, store.Set(context.Background(), DefaultKey, []byte("not json")))

	c := newTestCache(t, store)
	assert.Zero(t, c.Len())
}

func TestLoadDropsInvalidDays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	doc := `{"schemaVersion":2,"snapshots":{
		"2024-01-02":{"balance":10000,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":[],"complete":true},
		"2024-01-03":{"balance":"lots","unrealizedPnL":0,"stockPrices":{},"positionsOwned":[]},
		"2024-01-04":{"unrealizedPnL":0,"stockPrices":{},"positionsOwned":[]},
		"2024-01-05":{"balance":1,"unrealizedPnL":0,"stockPrices":[],"positionsOwned":[]},
		"2024-01-08":{"balance":1,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":"AAPL"},
		"2024-01-09":{"balance":1,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":["AAPL"],"complete":true},
		"2024-01-10":{"balance":1,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":["AAPL"],"complete":false,"missingTickers":["AAPL"],"retryCount":1},
		"2024-01-06":{"balance":1,"unrealizedPnL":0,"stockPrices":{},"positionsOwned":[]},
		"2024-01-11":42
	}}`
	require.NoError(t, store.Set(ctx, DefaultKey, []byte(doc)))

	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestCache(t, store, WithLogger(zap.New(core)))

	assert.Equal(t, []time.Time{day(2024, 1, 2), day(2024, 1, 10)}, c.Days())
	assert.Equal(t, 7, logs.FilterMessage("dropping invalid snapshot").Len())

	kept, _ := c.Get(day(2024, 1, 10))
	assert.False(t, kept.Complete)
	assert.Equal(t, 1, kept.RetryCount)
	assert.Equal(t, 1.0, kept.RealizedBalance)

	reloaded := newTestCache(t, store)
	assert.Equal(t, 2, reloaded.Len())
}

func TestSaveBatchRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failingStore{Memory: kvstore.NewMemory(0)}
	c := newTestCache(t, store)
	require.NoError(t, c.Save(ctx, day(2024, 1, 2), complete(1)))

	store.setErr = errors.New("disk gone")
	err := c.SaveBatch(ctx, map[time.Time]Snapshot{
		day(2024, 1, 2): complete(99),
		day(2024, 1, 3): complete(2),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheReset)

	assert.Equal(t, 1, c.Len())
	s, _ := c.Get(day(2024, 1, 2))
	assert.Equal(t, 1.0, s.Balance)
}

func TestQuotaDropsOldestHalf(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kvstore.NewMemory(0)
	c := newTestCache(t, store)

	batch := map[time.Time]Snapshot{}
	days := []time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4), day(2024, 1, 5)}
	for i, d := range days {
		batch[d] = complete(float64(i))
	}
	require.NoError(t, c.SaveBatch(ctx, batch))

	// Four days fit, five do not.
	raw, _, _ := store.Get(ctx, DefaultKey)
	store.Quota = len(raw)

	err := c.Save(ctx, day(2024, 1, 8), complete(5))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 4), day(2024, 1, 5), day(2024, 1, 8)}, c.Days())
}

func TestQuotaExhaustedClearsCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failingStore{Memory: kvstore.NewMemory(0)}
	c := newTestCache(t, store)
	require.NoError(t, c.Save(ctx, day(2024, 1, 2), complete(1)))

	store.setErr = fmt.Errorf("browser said no: %w", kvstore.ErrQuotaExceeded)
	err := c.Save(ctx, day(2024, 1, 3), complete(2))
	require.ErrorIs(t, err, ErrCacheReset)
	require.ErrorIs(t, err, kvstore.ErrQuotaExceeded)

	assert.Zero(t, c.Len())
	_, ok, _ := store.Get(ctx, DefaultKey)
	assert.False(t, ok)
}

func TestLoadReadError(t *testing.T) {
	t.Parallel()

	c := New(errStore{})
	err := c.Load(context.Background())
	require.Error(t, err)
	assert.Zero(t, c.Len())
}

type errStore struct{}

func (errStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("boom")
}
func (errStore) Set(context.Context, string, []byte) error { return nil }
func (errStore) Remove(context.Context, string) error      { return nil }
