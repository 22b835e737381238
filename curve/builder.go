package curve

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rustyeddy/equity/balance"
	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/id"
	"github.com/rustyeddy/equity/journal"
	"github.com/rustyeddy/equity/logging"
	"github.com/rustyeddy/equity/prices"
	"github.com/rustyeddy/equity/snapshot"
)

// TradeSource supplies the full trade history.
type TradeSource interface {
	Trades(ctx context.Context) ([]journal.Trade, error)
}

// CashFlowSource supplies every deposit and withdrawal.
type CashFlowSource interface {
	CashFlows(ctx context.Context) ([]journal.CashFlow, error)
}

type Options struct {
	StartingBalance float64
	Calendar        calendar.Calendar
	LookbackDays    int
	BatchSize       int
	BatchDelay      time.Duration
	Now             func() time.Time
	Logger          *zap.Logger
}

// Builder assembles the curve. At most one build runs at a time; callers
// arriving while one is running share its result.
type Builder struct {
	opts    Options
	trades  TradeSource
	flows   CashFlowSource
	cache   *snapshot.Cache
	history *prices.History
	live    prices.LiveSource
	log     *zap.Logger
	tracer  trace.Tracer

	group    singleflight.Group
	building atomic.Bool

	mu      sync.Mutex
	loaded  bool
	pending time.Time
	last    Curve
}

// NewBuilder wires a builder. live may be nil, in which case today's point
// is only drawn when no position is open.
func NewBuilder(opts Options, trades TradeSource, flows CashFlowSource, cache *snapshot.Cache, provider prices.Provider, live prices.LiveSource) *Builder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Calendar.Location == nil {
		opts.Calendar = calendar.Default()
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = prices.DefaultLookbackDays
	}
	log := logging.OrNop(opts.Logger).Named("curve")

	return &Builder{
		opts:    opts,
		trades:  trades,
		flows:   flows,
		cache:   cache,
		history: prices.NewHistory(prices.NewBatcher(provider, opts.BatchSize, opts.BatchDelay, log), opts.LookbackDays, opts.Now),
		live:    live,
		log:     log,
		tracer:  otel.Tracer("github.com/rustyeddy/equity/curve"),
	}
}

// Building reports whether a build is in progress.
func (b *Builder) Building() bool { return b.building.Load() }

// Last returns the most recently built curve.
func (b *Builder) Last() Curve {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Build brings the cache up to date and returns the curve limited to r.
//
// Only a failure to read trades or cash flows is returned. Price gaps show
// up as incomplete points, and a cache write failure is logged and answered
// with the previous curve.
func (b *Builder) Build(ctx context.Context, r Range) (Curve, error) {
	v, err, shared := b.group.Do("build", func() (any, error) {
		b.building.Store(true)
		defer b.building.Store(false)
		return b.build(ctx)
	})
	if shared {
		b.log.Debug("joined in-flight build")
	}
	if err != nil {
		return Curve{}, err
	}
	return b.narrow(v.(Curve), r), nil
}

// narrow limits c to r and keeps at least two points when c has any. Missing
// points are the nearest earlier points of c, then starting-balance points
// on the business days before.
func (b *Builder) narrow(c Curve, r Range) Curve {
	out := c.Within(r)
	if c.Empty() || out.Len() >= 2 {
		return out
	}

	var before []Point
	for _, p := range c.Points {
		if !r.Start.IsZero() && !p.Date.Before(r.Start) {
			break
		}
		before = append(before, p)
	}
	for out.Len() < 2 && len(before) > 0 {
		out.Points = append([]Point{before[len(before)-1]}, out.Points...)
		before = before[:len(before)-1]
	}

	bal := b.opts.StartingBalance
	switch out.Len() {
	case 0:
		end := calendar.Truncate(r.End)
		if !calendar.IsBusinessDay(end) {
			end = calendar.PreviousBusinessDay(end)
		}
		out.Points = []Point{startPoint(calendar.PreviousBusinessDay(end), bal), startPoint(end, bal)}
	case 1:
		prev := calendar.PreviousBusinessDay(out.Points[0].Date)
		out.Points = append([]Point{startPoint(prev, bal)}, out.Points...)
	}
	return out
}

// WaterfallUpdate recomputes every day from from through today. A build
// already running finishes first; the recompute happens in the next one.
func (b *Builder) WaterfallUpdate(ctx context.Context, from time.Time) (Curve, error) {
	b.markPending(calendar.Truncate(from))
	if b.building.Load() {
		if _, err := b.Build(ctx, Range{}); err != nil {
			return Curve{}, err
		}
	}
	return b.Build(ctx, Range{})
}

// InvalidateForTrade recomputes from the first day the trade touches.
func (b *Builder) InvalidateForTrade(ctx context.Context, t journal.Trade) (Curve, error) {
	return b.WaterfallUpdate(ctx, balance.EarliestAffectedDate(t))
}

// InvalidateForEdit recomputes from the first day either version of an
// edited trade touches, so days the old version reached are not left behind.
func (b *Builder) InvalidateForEdit(ctx context.Context, before, after journal.Trade) (Curve, error) {
	from := calendar.Min(balance.EarliestAffectedDate(before), balance.EarliestAffectedDate(after))
	return b.WaterfallUpdate(ctx, from)
}

// InvalidateFromDate recomputes from date, typically a cash flow's day.
func (b *Builder) InvalidateFromDate(ctx context.Context, date time.Time) (Curve, error) {
	return b.WaterfallUpdate(ctx, date)
}

// BalanceOnDate returns the balance of the last built curve at date, or at
// the latest point before it when date has none.
func (b *Builder) BalanceOnDate(date time.Time) (float64, bool) {
	d := calendar.Truncate(date)
	c := b.Last()

	found := false
	var bal float64
	for _, p := range c.Points {
		if p.Date.After(d) {
			break
		}
		bal, found = p.Balance, true
	}
	return bal, found
}

// Reset drops every cached snapshot and fetched price.
func (b *Builder) Reset(ctx context.Context) error {
	b.mu.Lock()
	b.pending = time.Time{}
	b.last = Curve{}
	b.mu.Unlock()

	b.history.Forget()
	return b.cache.ClearAll(ctx)
}

func (b *Builder) markPending(from time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.IsZero() || from.Before(b.pending) {
		b.pending = from
	}
}

func (b *Builder) takePending() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending
	b.pending = time.Time{}
	return p
}

func (b *Builder) setLast(c Curve) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = c
}

func (b *Builder) ensureLoaded(ctx context.Context) {
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if loaded {
		return
	}
	if err := b.cache.Load(ctx); err != nil {
		b.log.Warn("load snapshot cache", zap.Error(err))
		return
	}
	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()
}

func (b *Builder) build(ctx context.Context) (Curve, error) {
	buildID := id.New()
	ctx, span := b.tracer.Start(ctx, "curve.Build", trace.WithAttributes(attribute.String("build.id", buildID)))
	defer span.End()
	log := b.log.With(zap.String("build", buildID))

	b.ensureLoaded(ctx)
	waterfall := b.takePending()

	trades, err := b.trades.Trades(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read trades")
		b.restorePending(waterfall)
		return Curve{}, fmt.Errorf("read trades: %w", err)
	}
	flows, err := b.flows.CashFlows(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read cash flows")
		b.restorePending(waterfall)
		return Curve{}, fmt.Errorf("read cash flows: %w", err)
	}

	now := b.opts.Now()
	if len(trades) == 0 {
		c := Curve{BuiltAt: now}
		b.setLast(c)
		return c, nil
	}

	first, _ := balance.EarliestEntry(trades)
	// A weekend entry first moves the balance at Monday's close, the same day
	// a weekend cash flow starts counting.
	start := first
	if !calendar.IsBusinessDay(start) {
		start = calendar.NextBusinessDay(start)
	}
	today := b.opts.Calendar.TradingDayFor(now)
	span.SetAttributes(
		attribute.String("curve.start", calendar.Key(start)),
		attribute.String("curve.today", calendar.Key(today)),
		attribute.Int("curve.trades", len(trades)),
	)

	p := &pass{
		b:         b,
		log:       log,
		trades:    trades,
		flows:     flows,
		start:     start,
		today:     today,
		now:       now,
		waterfall: waterfall,
	}

	if !waterfall.IsZero() {
		n, err := b.cache.InvalidateFrom(ctx, waterfall)
		if err != nil {
			b.restorePending(waterfall)
			return b.abort(span, log, "invalidate", err)
		}
		log.Info("waterfall invalidation", zap.String("from", calendar.Key(waterfall)), zap.Int("days", n))
	}
	if err := p.backfill(ctx); err != nil {
		return b.abort(span, log, "backfill", err)
	}
	if err := p.checkStale(ctx); err != nil {
		return b.abort(span, log, "stale check", err)
	}
	if err := p.fillGaps(ctx); err != nil {
		return b.abort(span, log, "gap fill", err)
	}

	c := p.assemble(ctx)
	span.SetAttributes(attribute.Int("curve.points", c.Len()))
	log.Debug("curve built", zap.Int("points", c.Len()), zap.Int("cached_days", b.cache.Len()))
	b.setLast(c)
	return c, nil
}

// abort logs a cache write failure and answers with the previous curve.
func (b *Builder) abort(span trace.Span, log *zap.Logger, stage string, err error) (Curve, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	log.Error("curve build aborted", zap.String("stage", stage), zap.Error(err))
	return b.Last(), nil
}

func (b *Builder) restorePending(from time.Time) {
	if !from.IsZero() {
		b.markPending(from)
	}
}
