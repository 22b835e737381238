// Package balance turns a starting balance, a trade list, a cash-flow list
// and a price map into a balance breakdown, either now or as of a past day.
//
// Nothing here returns an error. A position without a price contributes
// zero and is reported in Breakdown.MissingTickers; deciding what that means
// is the caller's job.
package balance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/journal"
)

// Prices maps ticker to the price used for valuation.
type Prices map[string]float64

// Breakdown is the balance of the account at one reference point.
type Breakdown struct {
	Balance         float64
	RealizedBalance float64
	UnrealizedPnL   float64
	RealizedPnL     float64
	CashFlow        float64

	// PositionsOwned lists the tickers held at the reference point, sorted.
	PositionsOwned []string
	// MissingTickers lists owned tickers that had no price, sorted.
	MissingTickers []string
}

// Complete reports whether every owned ticker was priced.
func (b Breakdown) Complete() bool {
	return len(b.MissingTickers) == 0
}

var cents = int32(2)

// Current values the account now: every realized trade counts, every open
// or partly trimmed trade is marked at livePrices, and every cash flow counts.
func Current(startingBalance float64, trades []journal.Trade, cashFlows []journal.CashFlow, livePrices Prices) Breakdown {
	realized := decimal.Zero
	unrealized := decimal.Zero
	owned := map[string]bool{}
	missing := map[string]bool{}

	for _, t := range trades {
		if t.HasRealized() {
			realized = realized.Add(decimal.NewFromFloat(t.RealizedPnL()))
		}
		if t.Status == journal.StatusClosed {
			continue
		}
		held := sharesHeld(t, time.Time{})
		if held <= 0 {
			continue
		}
		owned[t.Ticker] = true
		price, ok := livePrices[t.Ticker]
		if !ok {
			missing[t.Ticker] = true
			continue
		}
		unrealized = unrealized.Add(positionPnL(t, held, price))
	}

	cash := decimal.Zero
	for _, c := range cashFlows {
		cash = cash.Add(decimal.NewFromFloat(c.Signed()))
	}

	return assemble(startingBalance, realized, unrealized, cash, owned, missing)
}

// AtDate values the account at the close of date. Only events dated on or
// before date count; every event is compared by its calendar day.
func AtDate(date time.Time, startingBalance float64, trades []journal.Trade, cashFlows []journal.CashFlow, eodPrices Prices) Breakdown {
	date = calendar.Truncate(date)

	realized := decimal.Zero
	unrealized := decimal.Zero
	owned := map[string]bool{}
	missing := map[string]bool{}

	for _, t := range trades {
		realized = realized.Add(realizedAt(t, date))

		if !OpenOn(t, date) {
			continue
		}
		held := sharesHeld(t, date)
		if held <= 0 {
			continue
		}
		owned[t.Ticker] = true
		price, ok := eodPrices[t.Ticker]
		if !ok {
			missing[t.Ticker] = true
			continue
		}
		unrealized = unrealized.Add(positionPnL(t, held, price))
	}

	cash := decimal.Zero
	for _, c := range cashFlows {
		if CashFlowDay(c).After(date) {
			continue
		}
		cash = cash.Add(decimal.NewFromFloat(c.Signed()))
	}

	return assemble(startingBalance, realized, unrealized, cash, owned, missing)
}

func assemble(start float64, realized, unrealized, cash decimal.Decimal, owned, missing map[string]bool) Breakdown {
	realizedPnL, _ := realized.Round(cents).Float64()
	unrealizedPnL, _ := unrealized.Round(cents).Float64()
	cashFlow, _ := cash.Round(cents).Float64()
	realizedBalance, _ := decimal.NewFromFloat(start).Add(realized).Add(cash).Round(cents).Float64()

	return Breakdown{
		Balance:         realizedBalance + unrealizedPnL,
		RealizedBalance: realizedBalance,
		UnrealizedPnL:   unrealizedPnL,
		RealizedPnL:     realizedPnL,
		CashFlow:        cashFlow,
		PositionsOwned:  sortedKeys(owned),
		MissingTickers:  sortedKeys(missing),
	}
}

func positionPnL(t journal.Trade, held, price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(t.Entry)).
		Mul(decimal.NewFromFloat(held)).
		Mul(decimal.NewFromFloat(t.Multiplier()))
}

// realizedAt returns the part of a trade's realized P&L locked in by date.
// A closed trade whose exit is on or before date counts in full. Otherwise
// the trims dated on or before date count in proportion to the shares they
// sold: against the original size for a trade that later closes, against all
// trims for a trade that is still only trimmed.
func realizedAt(t journal.Trade, date time.Time) decimal.Decimal {
	if !t.HasRealized() {
		return decimal.Zero
	}
	total := decimal.NewFromFloat(t.RealizedPnL())

	if t.Status == journal.StatusClosed && !closeDay(t).After(date) {
		return total
	}

	soldByDate, soldTotal := 0.0, 0.0
	for _, tr := range t.TrimHistory {
		soldTotal += tr.SharesSold
		if !calendar.Truncate(tr.Date).After(date) {
			soldByDate += tr.SharesSold
		}
	}
	if soldTotal <= 0 {
		// No trim to weigh by: the whole amount lands on the close day.
		if closeDay(t).After(date) {
			return decimal.Zero
		}
		return total
	}
	if soldByDate <= 0 {
		return decimal.Zero
	}

	denom := soldTotal
	if t.Status == journal.StatusClosed {
		denom = t.Shares
	}
	if denom <= 0 || soldByDate >= denom {
		return total
	}
	return total.Mul(decimal.NewFromFloat(soldByDate)).Div(decimal.NewFromFloat(denom))
}

// OpenOn reports whether a trade holds a position at the close of date.
func OpenOn(t journal.Trade, date time.Time) bool {
	date = calendar.Truncate(date)
	if calendar.Truncate(t.EntryDate).After(date) {
		return false
	}
	if t.Status == journal.StatusClosed && !closeDay(t).After(date) {
		return false
	}
	return sharesHeld(t, date) > 0
}

// sharesHeld subtracts the trims dated on or before date. A zero date
// subtracts every trim.
func sharesHeld(t journal.Trade, date time.Time) float64 {
	held := t.Shares
	for _, tr := range t.TrimHistory {
		if date.IsZero() || !calendar.Truncate(tr.Date).After(date) {
			held -= tr.SharesSold
		}
	}
	return held
}

// closeDay is the exit date of a closed trade, falling back to its last trim
// and then its entry when the journal did not record an exit.
func closeDay(t journal.Trade) time.Time {
	if !t.ExitDate.IsZero() {
		return calendar.Truncate(t.ExitDate)
	}
	last := calendar.Truncate(t.EntryDate)
	for _, tr := range t.TrimHistory {
		if d := calendar.Truncate(tr.Date); d.After(last) {
			last = d
		}
	}
	return last
}

// CashFlowDay is the day a cash flow starts counting toward the balance.
func CashFlowDay(c journal.CashFlow) time.Time {
	return calendar.Truncate(c.Timestamp)
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
