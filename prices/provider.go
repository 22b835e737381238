// Package prices fetches end-of-day closes and live quotes for the tickers
// the balance curve needs, and remembers what it already fetched.
package prices

import "context"

// Provider returns daily closes for a batch of tickers over the last
// windowDays calendar days, keyed ticker -> "2006-01-02" -> close. A ticker
// the provider could not resolve is simply absent from the result.
type Provider interface {
	BatchFetchHistorical(ctx context.Context, tickers []string, windowDays int) (map[string]map[string]float64, error)
}

// LiveSource returns the current quote for a ticker. ok is false when the
// source has no quote yet.
type LiveSource interface {
	CurrentPrice(ctx context.Context, ticker string) (price float64, ok bool, err error)
}

// Fetcher is a Provider that never fails as a whole: failures show up as
// missing tickers.
type Fetcher interface {
	Fetch(ctx context.Context, tickers []string, windowDays int) map[string]map[string]float64
}
