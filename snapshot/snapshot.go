// Package snapshot is the persistent end-of-day cache: one Snapshot per
// trading day, stored as a single versioned document in a kvstore.Store.
package snapshot

import (
	"sort"
	"time"

	"github.com/rustyeddy/equity/balance"
)

// SchemaVersion is the document version this code reads and writes. A
// stored document with any other version is discarded, never migrated.
const SchemaVersion = 2

// DefaultMaxRetries is how many times an incomplete day is attempted before
// backfill gives up on it.
const DefaultMaxRetries = 3

// Source records how a snapshot was produced.
type Source string

const (
	SourceLiveQuote    Source = "live_quote"
	SourceHistorical   Source = "historical_provider"
	SourceRecalculated Source = "recalculated"
	SourceNoPositions  Source = "no_positions"
	SourceRetry        Source = "retry"
)

// Snapshot is the balance state at the close of one trading day.
//
// Balance always equals RealizedBalance + UnrealizedPnL. Complete is true
// only when MissingTickers is empty and every owned ticker has a price.
type Snapshot struct {
	Balance         float64            `json:"balance"`
	RealizedBalance float64            `json:"realizedBalance"`
	UnrealizedPnL   float64            `json:"unrealizedPnL"`
	CashFlow        float64            `json:"cashFlow"`
	StockPrices     map[string]float64 `json:"stockPrices"`
	PositionsOwned  []string           `json:"positionsOwned"`
	Source          Source             `json:"source"`
	Complete        bool               `json:"complete"`
	MissingTickers  []string           `json:"missingTickers,omitempty"`
	RetryCount      int                `json:"retryCount"`
	ComputedAt      time.Time          `json:"computedAt"`
}

// FromBreakdown builds a snapshot from a computed balance. Only the prices
// of owned tickers are kept.
func FromBreakdown(b balance.Breakdown, prices map[string]float64, source Source, at time.Time) Snapshot {
	used := make(map[string]float64, len(b.PositionsOwned))
	for _, t := range b.PositionsOwned {
		if p, ok := prices[t]; ok {
			used[t] = p
		}
	}
	owned := b.PositionsOwned
	if owned == nil {
		owned = []string{}
	}

	s := Snapshot{
		Balance:         b.RealizedBalance + b.UnrealizedPnL,
		RealizedBalance: b.RealizedBalance,
		UnrealizedPnL:   b.UnrealizedPnL,
		CashFlow:        b.CashFlow,
		StockPrices:     used,
		PositionsOwned:  owned,
		Source:          source,
		MissingTickers:  b.MissingTickers,
		ComputedAt:      at,
	}
	s.Complete = s.computeComplete()
	return s
}

func (s Snapshot) computeComplete() bool {
	if len(s.MissingTickers) > 0 {
		return false
	}
	return s.ownedPriced()
}

func (s Snapshot) ownedPriced() bool {
	for _, t := range s.PositionsOwned {
		if _, ok := s.StockPrices[t]; !ok {
			return false
		}
	}
	return true
}

// Exhausted reports whether backfill has given up on the snapshot.
func (s Snapshot) Exhausted(maxRetries int) bool {
	return !s.Complete && s.RetryCount >= maxRetries
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.StockPrices != nil {
		out.StockPrices = make(map[string]float64, len(s.StockPrices))
		for k, v := range s.StockPrices {
			out.StockPrices[k] = v
		}
	}
	out.PositionsOwned = append([]string(nil), s.PositionsOwned...)
	out.MissingTickers = append([]string(nil), s.MissingTickers...)
	return out
}

func sortedDayKeys(m map[string]Snapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
