package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

const tradeColumns = `trade_id, ticker, entry_date, exit_date, status, shares, entry_price, stop_price,
	trim_history, asset_type, total_realized_pnl, pnl`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (Trade, error) {
	var (
		rec      Trade
		exit     sql.NullTime
		status   string
		trimJSON string
		asset    string
		total    sql.NullFloat64
	)
	err := row.Scan(
		&rec.ID,
		&rec.Ticker,
		&rec.EntryDate,
		&exit,
		&status,
		&rec.Shares,
		&rec.Entry,
		&rec.Stop,
		&trimJSON,
		&asset,
		&total,
		&rec.PnL,
	)
	if err != nil {
		return Trade{}, err
	}
	if exit.Valid {
		rec.ExitDate = exit.Time
	}
	rec.Status = Status(status)
	rec.AssetType = AssetType(asset)
	if total.Valid {
		v := total.Float64
		rec.TotalRealizedPnL = &v
	}
	if trimJSON != "" {
		if err := json.Unmarshal([]byte(trimJSON), &rec.TrimHistory); err != nil {
			return Trade{}, fmt.Errorf("trade %s trim history: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return Trade{}, err
	}
	return rec, nil
}

// Trades returns every trade ordered by entry date.
func (j *SQLite) Trades(ctx context.Context) ([]Trade, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].EntryDate.Equal(out[b].EntryDate) {
			return out[a].ID < out[b].ID
		}
		return out[a].EntryDate.Before(out[b].EntryDate)
	})
	return out, nil
}

// ListTradesClosedBetween returns trades whose exit_date is within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]Trade, error) {
	all, err := j.Trades(ctx)
	if err != nil {
		return nil, err
	}
	var out []Trade
	for _, t := range all {
		if t.ExitDate.IsZero() {
			continue
		}
		if !t.ExitDate.Before(start) && t.ExitDate.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CashFlows returns every cash flow ordered by time.
func (j *SQLite) CashFlows(ctx context.Context) ([]CashFlow, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT cash_flow_id, type, amount, time FROM cash_flows`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CashFlow
	for rows.Next() {
		var (
			rec CashFlow
			typ string
		)
		if err := rows.Scan(&rec.ID, &typ, &rec.Amount, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Type = CashFlowType(typ)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.Before(out[b].Timestamp)
	})
	return out, nil
}
