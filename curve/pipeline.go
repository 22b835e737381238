package curve

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/equity/balance"
	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/journal"
	"github.com/rustyeddy/equity/snapshot"
)

// pass carries the inputs of one build through its stages.
type pass struct {
	b   *Builder
	log *zap.Logger

	trades []journal.Trade
	flows  []journal.CashFlow
	start  time.Time // first business day with a trade
	today  time.Time // current trading day, never cached
	now    time.Time

	// waterfall is the first day of a forced recompute, zero when none.
	waterfall time.Time
}

func (p *pass) startingBalance() float64 { return p.b.opts.StartingBalance }

// lastCacheable is the latest day gap fill may write.
func (p *pass) lastCacheable() time.Time {
	return calendar.PreviousBusinessDay(p.today)
}

// backfill retries incomplete days that still have attempts left, fetching
// only the tickers each of them is missing.
func (p *pass) backfill(ctx context.Context) error {
	ctx, span := p.b.tracer.Start(ctx, "curve.backfill")
	defer span.End()

	days := p.b.cache.Retryable()
	if len(days) == 0 {
		return nil
	}

	stored := make(map[time.Time]snapshot.Snapshot, len(days))
	want := map[string]bool{}
	for _, d := range days {
		s, _ := p.b.cache.Get(d)
		stored[d] = s
		for _, t := range unpriced(s) {
			want[t] = true
		}
	}
	tickers := sortedSet(want)
	p.b.history.Refresh(ctx, tickers, days[0])

	batch := make(map[time.Time]snapshot.Snapshot, len(days))
	for _, d := range days {
		s := stored[d]
		px := make(map[string]float64, len(s.StockPrices)+len(s.MissingTickers))
		for t, v := range s.StockPrices {
			px[t] = v
		}
		for _, t := range unpriced(s) {
			if v, ok := p.b.history.Close(t, d); ok {
				px[t] = v
			}
		}
		bd := balance.AtDate(d, p.startingBalance(), p.trades, p.flows, px)
		batch[d] = snapshot.FromBreakdown(bd, px, snapshot.SourceRetry, p.now)
	}

	p.log.Info("backfilling incomplete days", zap.Int("days", len(days)), zap.Strings("tickers", tickers))
	return p.b.cache.SaveBatch(ctx, batch)
}

// checkStale clears the cache when its newest day shows no position even
// though a trade open today was already entered by then.
//
// TODO: store a hash of the trades and cash flows a snapshot was computed
// from and compare that instead of sampling one day.
func (p *pass) checkStale(ctx context.Context) error {
	open := balance.OpenTrades(p.trades)
	if len(open) == 0 {
		return nil
	}
	var latestEntry time.Time
	for _, t := range open {
		if e := calendar.Truncate(t.EntryDate); e.After(latestEntry) {
			latestEntry = e
		}
	}

	days := p.b.cache.Days()
	if len(days) == 0 {
		return nil
	}
	newest := days[len(days)-1]
	if newest.Before(latestEntry) {
		return nil
	}
	s, _ := p.b.cache.Get(newest)
	if s.UnrealizedPnL != 0 || len(s.PositionsOwned) > 0 {
		return nil
	}

	p.log.Warn("snapshot cache looks stale, clearing", zap.String("sampled", calendar.Key(newest)))
	p.b.history.Forget()
	return p.b.cache.ClearAll(ctx)
}

// fillGaps computes every business day up to yesterday that has never been
// stored and writes them in one batch. Days stored incomplete are left to
// backfill so their retry count stays honest.
func (p *pass) fillGaps(ctx context.Context) error {
	end := p.lastCacheable()
	if end.Before(p.start) {
		return nil
	}
	ctx, span := p.b.tracer.Start(ctx, "curve.fillGaps")
	defer span.End()

	var days []time.Time
	for _, d := range p.b.cache.FindMissingDays(p.start, end) {
		if _, stored := p.b.cache.Get(d); !stored {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil
	}

	owned := make(map[time.Time][]string, len(days))
	need := map[string][]time.Time{}
	for _, d := range days {
		tickers := balance.OpenTickersAt(p.trades, d)
		owned[d] = tickers
		for _, t := range tickers {
			need[t] = append(need[t], d)
		}
	}
	fetched := p.b.history.Ensure(ctx, need)

	batch := make(map[time.Time]snapshot.Snapshot, len(days))
	incomplete := 0
	for _, d := range days {
		px := p.b.history.PricesOn(d, owned[d])
		bd := balance.AtDate(d, p.startingBalance(), p.trades, p.flows, px)
		s := snapshot.FromBreakdown(bd, px, p.sourceFor(d, owned[d]), p.now)
		if !s.Complete {
			incomplete++
		}
		batch[d] = s
	}

	p.log.Info("filling gaps",
		zap.Int("days", len(days)),
		zap.Int("incomplete", incomplete),
		zap.Int("fetched_tickers", len(fetched)),
	)
	return p.b.cache.SaveBatch(ctx, batch)
}

func (p *pass) sourceFor(d time.Time, owned []string) snapshot.Source {
	switch {
	case !p.waterfall.IsZero() && !d.Before(p.waterfall):
		return snapshot.SourceRecalculated
	case len(owned) == 0:
		return snapshot.SourceNoPositions
	}
	return snapshot.SourceHistorical
}

// assemble walks every business day from start through today. Exhausted
// days are gaps; today is valued live.
func (p *pass) assemble(ctx context.Context) Curve {
	ctx, span := p.b.tracer.Start(ctx, "curve.assemble")
	defer span.End()

	maxRetries := p.b.cache.MaxRetries()
	var pts []Point
	for d := range calendar.BusinessDays(p.start, p.today) {
		if d.Equal(p.today) {
			if pt, ok := p.livePoint(ctx); ok {
				pts = append(pts, pt)
			}
			continue
		}
		s, ok := p.b.cache.Get(d)
		if !ok || s.Exhausted(maxRetries) {
			continue
		}
		pts = append(pts, pointFromSnapshot(d, s))
	}

	pts = p.ensureTwoPoints(pts)
	p.fillDayPnL(pts)
	return Curve{Points: pts, BuiltAt: p.now}
}

// livePoint values today from current quotes. It is skipped when positions
// are open and no quote at all came back, rather than drawn as a false drop.
func (p *pass) livePoint(ctx context.Context) (Point, bool) {
	tickers := map[string]bool{}
	for _, t := range balance.OpenTrades(p.trades) {
		tickers[t.Ticker] = true
	}

	quotes := balance.Prices{}
	if p.b.live != nil {
		for _, t := range sortedSet(tickers) {
			v, ok, err := p.b.live.CurrentPrice(ctx, t)
			if err != nil {
				p.log.Warn("live quote", zap.String("ticker", t), zap.Error(err))
				continue
			}
			if ok {
				quotes[t] = v
			}
		}
	}
	if len(tickers) > 0 && len(quotes) == 0 {
		p.log.Debug("no live quotes yet, omitting today")
		return Point{}, false
	}

	bd := balance.Current(p.startingBalance(), p.trades, p.flows, quotes)
	s := snapshot.FromBreakdown(bd, quotes, snapshot.SourceLiveQuote, p.now)
	return pointFromSnapshot(p.today, s), true
}

// ensureTwoPoints pads the curve with starting-balance points on the
// business days before it.
func (p *pass) ensureTwoPoints(pts []Point) []Point {
	switch len(pts) {
	case 0:
		prev := calendar.PreviousBusinessDay(p.start)
		return []Point{p.synthetic(prev), p.synthetic(p.start)}
	case 1:
		prev := calendar.PreviousBusinessDay(pts[0].Date)
		return append([]Point{p.synthetic(prev)}, pts...)
	}
	return pts
}

func (p *pass) synthetic(d time.Time) Point {
	return startPoint(d, p.startingBalance())
}

// fillDayPnL sets each point's change against the previous one, with the
// first measured against the starting balance.
func (p *pass) fillDayPnL(pts []Point) {
	prevBal := decimal.NewFromFloat(p.startingBalance())
	prevCash := decimal.Zero
	for i := range pts {
		bal := decimal.NewFromFloat(pts[i].Balance)
		cash := decimal.NewFromFloat(pts[i].CashFlow)
		pts[i].DayPnL, _ = bal.Sub(prevBal).Sub(cash.Sub(prevCash)).Round(2).Float64()
		prevBal, prevCash = bal, cash
	}
}

// unpriced lists the owned tickers a snapshot has no price for, plus any it
// recorded as missing.
func unpriced(s snapshot.Snapshot) []string {
	set := map[string]bool{}
	for _, t := range s.MissingTickers {
		set[t] = true
	}
	for _, t := range s.PositionsOwned {
		if _, ok := s.StockPrices[t]; !ok {
			set[t] = true
		}
	}
	return sortedSet(set)
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
