package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/equity/calendar"
)

// document is the stored shape of the whole cache.
type document struct {
	SchemaVersion          int                 `json:"schemaVersion"`
	LastCompleteTradingDay string              `json:"lastCompleteTradingDay,omitempty"`
	Snapshots              map[string]Snapshot `json:"snapshots"`
}

// rawDocument defers decoding of each day so one bad day cannot poison the rest.
type rawDocument struct {
	SchemaVersion          int                        `json:"schemaVersion"`
	LastCompleteTradingDay string                     `json:"lastCompleteTradingDay"`
	Snapshots              map[string]json.RawMessage `json:"snapshots"`
}

// wireSnapshot mirrors Snapshot with pointers and raw fields so that a
// missing or mistyped field is distinguishable from a zero value.
type wireSnapshot struct {
	Balance         *float64        `json:"balance"`
	RealizedBalance *float64        `json:"realizedBalance"`
	UnrealizedPnL   *float64        `json:"unrealizedPnL"`
	CashFlow        *float64        `json:"cashFlow"`
	StockPrices     json.RawMessage `json:"stockPrices"`
	PositionsOwned  json.RawMessage `json:"positionsOwned"`
	Source          Source          `json:"source"`
	Complete        *bool           `json:"complete"`
	MissingTickers  []string        `json:"missingTickers"`
	RetryCount      int             `json:"retryCount"`
	ComputedAt      time.Time       `json:"computedAt"`
}

var (
	errNotObject    = errors.New("not an object")
	errBadKey       = errors.New("key is not a business day")
	errBalance      = errors.New("balance is not a finite number")
	errUnrealized   = errors.New("unrealizedPnL is not a finite number")
	errStockPrices  = errors.New("stockPrices is not a map")
	errPositions    = errors.New("positionsOwned is not a list")
	errInconsistent = errors.New("owned ticker has no price")
)

// decodeDay validates one stored day and converts it to a Snapshot.
func decodeDay(key string, raw json.RawMessage) (Snapshot, error) {
	d, err := calendar.ParseKey(key)
	if err != nil || !calendar.IsBusinessDay(d) {
		return Snapshot{}, errBadKey
	}
	if first(raw) != '{' {
		return Snapshot{}, errNotObject
	}

	var w wireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return Snapshot{}, fmt.Errorf("decode: %w", err)
	}
	if !finite(w.Balance) {
		return Snapshot{}, errBalance
	}
	if !finite(w.UnrealizedPnL) {
		return Snapshot{}, errUnrealized
	}

	var prices map[string]float64
	if first(w.StockPrices) != '{' || json.Unmarshal(w.StockPrices, &prices) != nil {
		return Snapshot{}, errStockPrices
	}
	var owned []string
	if first(w.PositionsOwned) != '[' || json.Unmarshal(w.PositionsOwned, &owned) != nil {
		return Snapshot{}, errPositions
	}
	if owned == nil {
		owned = []string{}
	}

	s := Snapshot{
		Balance:        *w.Balance,
		UnrealizedPnL:  *w.UnrealizedPnL,
		StockPrices:    prices,
		PositionsOwned: owned,
		Source:         w.Source,
		MissingTickers: w.MissingTickers,
		RetryCount:     w.RetryCount,
		ComputedAt:     w.ComputedAt,
	}
	if finite(w.RealizedBalance) {
		s.RealizedBalance = *w.RealizedBalance
	} else {
		s.RealizedBalance = s.Balance - s.UnrealizedPnL
	}
	if finite(w.CashFlow) {
		s.CashFlow = *w.CashFlow
	}

	markedIncomplete := w.Complete != nil && !*w.Complete
	if !markedIncomplete && !s.ownedPriced() {
		return Snapshot{}, errInconsistent
	}
	s.Complete = !markedIncomplete && s.computeComplete()
	return s, nil
}

func first(raw json.RawMessage) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func finite(f *float64) bool {
	return f != nil && !math.IsNaN(*f) && !math.IsInf(*f, 0)
}
