package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/equity/id"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// RecordTrade inserts or replaces a trade. An empty ID is filled with a ULID.
func (j *SQLite) RecordTrade(t Trade) error {
	_, err := j.SaveTrade(context.Background(), t)
	return err
}

// SaveTrade is RecordTrade with a context; it returns the stored trade.
func (j *SQLite) SaveTrade(ctx context.Context, t Trade) (Trade, error) {
	if t.ID == "" {
		t.ID = newID(t.EntryDate)
	}
	if t.AssetType == "" {
		t.AssetType = AssetStock
	}
	trims := t.TrimHistory
	if trims == nil {
		trims = []Trim{}
	}
	trimJSON, err := json.Marshal(trims)
	if err != nil {
		return t, fmt.Errorf("encode trim history: %w", err)
	}

	var exit any
	if !t.ExitDate.IsZero() {
		exit = t.ExitDate
	}
	var total any
	if t.TotalRealizedPnL != nil {
		total = *t.TotalRealizedPnL
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		(trade_id, ticker, entry_date, exit_date, status, shares, entry_price, stop_price,
		 trim_history, asset_type, total_realized_pnl, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Ticker, t.EntryDate, exit, string(t.Status), t.Shares, t.Entry, t.Stop,
		string(trimJSON), string(t.AssetType), total, t.PnL,
	)
	return t, err
}

// RecordCashFlow inserts or replaces a cash flow. An empty ID is filled with a ULID.
func (j *SQLite) RecordCashFlow(c CashFlow) error {
	_, err := j.SaveCashFlow(context.Background(), c)
	return err
}

func (j *SQLite) SaveCashFlow(ctx context.Context, c CashFlow) (CashFlow, error) {
	if c.ID == "" {
		c.ID = newID(c.Timestamp)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cash_flows (cash_flow_id, type, amount, time)
		VALUES (?, ?, ?, ?)`,
		c.ID, string(c.Type), c.Amount, c.Timestamp,
	)
	return c, err
}

// DeleteTrade removes a trade and returns what was stored so the caller can
// invalidate the days it touched.
func (j *SQLite) DeleteTrade(ctx context.Context, tradeID string) (Trade, error) {
	t, err := j.GetTrade(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if _, err := j.db.ExecContext(ctx, `DELETE FROM trades WHERE trade_id = ?`, tradeID); err != nil {
		return Trade{}, err
	}
	return t, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// newID stamps a ULID with the record's own date so backdated imports sort
// among the records of that day.
func newID(at time.Time) string {
	if at.IsZero() {
		return id.New()
	}
	return id.At(at)
}
