package journal

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a trade or cash flow id is unknown.
var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusOpen    Status = "open"
	StatusTrimmed Status = "trimmed"
	StatusClosed  Status = "closed"
)

type AssetType string

const (
	AssetStock   AssetType = "stock"
	AssetOptions AssetType = "options"
)

// OptionsMultiplier is the contract size applied to option price moves.
const OptionsMultiplier = 100

// Trim is a partial exit that reduces the share count of an open trade.
type Trim struct {
	Date       time.Time `json:"date"`
	SharesSold float64   `json:"sharesSold"`
}

// Trade is one journal entry. Shares is the original position size; trims
// are subtracted from it to get the shares still held on a given day.
type Trade struct {
	ID          string
	Ticker      string
	EntryDate   time.Time
	ExitDate    time.Time // zero while the trade is open
	Status      Status
	Shares      float64
	Entry       float64
	Stop        float64
	TrimHistory []Trim
	AssetType   AssetType

	// TotalRealizedPnL is preferred when set; PnL is the fallback.
	TotalRealizedPnL *float64
	PnL              float64
}

// Multiplier returns 100 for options and 1 for everything else.
func (t Trade) Multiplier() float64 {
	if t.AssetType == AssetOptions {
		return OptionsMultiplier
	}
	return 1
}

// RealizedPnL returns the realized figure the journal recorded for the trade.
func (t Trade) RealizedPnL() float64 {
	if t.TotalRealizedPnL != nil {
		return *t.TotalRealizedPnL
	}
	return t.PnL
}

// HasRealized reports whether the trade has closed or trimmed any shares.
func (t Trade) HasRealized() bool {
	return t.Status == StatusClosed || t.Status == StatusTrimmed
}

type CashFlowType string

const (
	Deposit    CashFlowType = "deposit"
	Withdrawal CashFlowType = "withdrawal"
)

// CashFlow is a deposit into or a withdrawal from the account.
type CashFlow struct {
	ID        string
	Type      CashFlowType
	Amount    float64
	Timestamp time.Time
}

// Signed returns the amount with withdrawals negated.
func (c CashFlow) Signed() float64 {
	if c.Type == Withdrawal {
		return -c.Amount
	}
	return c.Amount
}

type Journal interface {
	RecordTrade(Trade) error
	RecordCashFlow(CashFlow) error
	Close() error
}
