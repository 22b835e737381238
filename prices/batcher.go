package prices

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/equity/logging"
)

// DefaultBatchSize is how many tickers go into one provider call.
const DefaultBatchSize = 20

// Batcher splits a ticker list into fixed-size batches and calls the
// provider for each one in turn, waiting between calls so the provider's
// rate limit is never hit.
type Batcher struct {
	provider Provider
	size     int
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewBatcher returns a Batcher sending at most size tickers per call and
// leaving at least delay between calls. A zero delay disables the wait.
func NewBatcher(p Provider, size int, delay time.Duration, log *zap.Logger) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Batcher{
		provider: p,
		size:     size,
		limiter:  rate.NewLimiter(limit, 1),
		log:      logging.OrNop(log).Named("prices"),
	}
}

// Fetch returns whatever closes the provider could supply. A failed batch is
// logged and its tickers are left out; a cancelled context stops the
// remaining batches.
func (b *Batcher) Fetch(ctx context.Context, tickers []string, windowDays int) map[string]map[string]float64 {
	out := map[string]map[string]float64{}
	uniq := dedupe(tickers)

	for start := 0; start < len(uniq); start += b.size {
		end := min(start+b.size, len(uniq))
		batch := uniq[start:end]

		if err := b.limiter.Wait(ctx); err != nil {
			b.log.Warn("price fetch stopped", zap.Strings("skipped", uniq[start:]), zap.Error(err))
			return out
		}

		res, err := b.provider.BatchFetchHistorical(ctx, batch, windowDays)
		if err != nil {
			b.log.Warn("price batch failed", zap.Strings("tickers", batch), zap.Error(err))
			continue
		}
		for _, t := range batch {
			if closes, ok := res[t]; ok && len(closes) > 0 {
				out[t] = closes
			}
		}
		b.log.Debug("price batch fetched", zap.Int("requested", len(batch)), zap.Int("resolved", len(res)))
	}
	return out
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
