package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func ptr(v float64) *float64 { return &v }

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','cash_flows')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["cash_flows"])
}

func TestSQLiteRecordTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	rec := Trade{
		ID:        "T1",
		Ticker:    "AAPL",
		EntryDate: entry,
		ExitDate:  exit,
		Status:    StatusClosed,
		Shares:    10,
		Entry:     150,
		Stop:      145,
		TrimHistory: []Trim{
			{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), SharesSold: 4},
		},
		AssetType:        AssetStock,
		TotalRealizedPnL: ptr(500),
		PnL:              480,
	}
	require.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Ticker, got.Ticker)
	assert.True(t, got.EntryDate.Equal(entry))
	assert.True(t, got.ExitDate.Equal(exit))
	assert.Equal(t, StatusClosed, got.Status)
	assert.InDelta(t, 10, got.Shares, 1e-9)
	assert.InDelta(t, 150, got.Entry, 1e-9)
	assert.InDelta(t, 145, got.Stop, 1e-9)
	require.Len(t, got.TrimHistory, 1)
	assert.InDelta(t, 4, got.TrimHistory[0].SharesSold, 1e-9)
	require.NotNil(t, got.TotalRealizedPnL)
	assert.InDelta(t, 500, *got.TotalRealizedPnL, 1e-9)
	assert.InDelta(t, 480, got.PnL, 1e-9)
}

func TestSQLiteOpenTradeHasNoExitOrTotal(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	saved, err := j.SaveTrade(ctx, Trade{
		Ticker:    "MSFT",
		EntryDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:    StatusOpen,
		Shares:    5,
		Entry:     400,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID, "empty id is filled in")

	got, err := j.GetTrade(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, got.ExitDate.IsZero())
	assert.Nil(t, got.TotalRealizedPnL)
	assert.Empty(t, got.TrimHistory)
	assert.Equal(t, AssetStock, got.AssetType)
}

func TestSQLiteCashFlows(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	later := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordCashFlow(CashFlow{ID: "C2", Type: Withdrawal, Amount: 300, Timestamp: later}))
	require.NoError(t, j.RecordCashFlow(CashFlow{ID: "C1", Type: Deposit, Amount: 2000, Timestamp: earlier}))

	flows, err := j.CashFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "C1", flows[0].ID)
	assert.Equal(t, Deposit, flows[0].Type)
	assert.Equal(t, "C2", flows[1].ID)
	assert.InDelta(t, -300, flows[1].Signed(), 1e-9)
	assert.True(t, flows[1].Timestamp.Equal(later))
}
