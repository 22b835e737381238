package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/kvstore"
	"github.com/rustyeddy/equity/logging"
)

// DefaultKey is the store key the cache document lives under.
const DefaultKey = "eod_snapshot_cache"

// ErrCacheReset is returned when the store rejected the cache even after
// shrinking it, and the whole cache was dropped.
var ErrCacheReset = errors.New("snapshot cache reset after persist failure")

// Cache holds every stored day in memory and writes the whole document back
// to the store on each mutation. It is safe for concurrent use.
type Cache struct {
	store      kvstore.Store
	key        string
	log        *zap.Logger
	maxRetries int
	now        func() time.Time

	mu           sync.RWMutex
	days         map[string]Snapshot
	lastComplete string
}

type Option func(*Cache)

func WithKey(key string) Option {
	return func(c *Cache) { c.key = key }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.log = logging.OrNop(l) }
}

// WithMaxRetries sets how many attempts an incomplete day gets.
func WithMaxRetries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithClock sets the clock used to stamp ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store kvstore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		key:        DefaultKey,
		log:        zap.NewNop(),
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
		days:       map[string]Snapshot{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) MaxRetries() int { return c.maxRetries }

// Load replaces the in-memory state with the stored document. Days that do
// not validate are dropped and logged. A document with a different schema
// version, or one that does not parse at all, is replaced by an empty cache.
// Only a store read failure is returned.
func (c *Cache) Load(ctx context.Context) error {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
		return fmt.Errorf("read snapshot cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	if !ok {
		return nil
	}

	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.log.Warn("snapshot cache unreadable, starting empty", zap.Error(err))
		c.rewrite(ctx)
		return nil
	}
	if doc.SchemaVersion != SchemaVersion {
		c.log.Info("snapshot cache schema changed, starting empty",
			zap.Int("stored", doc.SchemaVersion), zap.Int("want", SchemaVersion))
		c.rewrite(ctx)
		return nil
	}

	dropped := 0
	for key, msg := range doc.Snapshots {
		s, err := decodeDay(key, msg)
		if err != nil {
			dropped++
			c.log.Warn("dropping invalid snapshot", zap.String("day", key), zap.Error(err))
			continue
		}
		c.days[key] = s
	}
	c.refreshLastComplete()

	if dropped > 0 {
		c.rewrite(ctx)
	}
	c.log.Debug("snapshot cache loaded", zap.Int("days", len(c.days)), zap.Int("dropped", dropped))
	return nil
}

// rewrite persists the current state after a load had to repair it. A
// failure here only means the repair is redone next load.
func (c *Cache) rewrite(ctx context.Context) {
	if err := c.persist(ctx); err != nil {
		c.log.Warn("rewrite snapshot cache", zap.Error(err))
	}
}

// Get returns the snapshot stored for day.
func (c *Cache) Get(day time.Time) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.days[calendar.Key(day)]
	if !ok {
		return Snapshot{}, false
	}
	return s.clone(), true
}

// Has reports whether day holds a complete snapshot.
func (c *Cache) Has(day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.days[calendar.Key(day)]
	return ok && s.Complete
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}

// Days returns every stored day in ascending order.
func (c *Cache) Days() []time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := sortedDayKeys(c.days)
	out := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		d, _ := calendar.ParseKey(k)
		out = append(out, d)
	}
	return out
}

// LastCompleteTradingDay is the latest day holding a complete snapshot.
func (c *Cache) LastCompleteTradingDay() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastComplete == "" {
		return time.Time{}, false
	}
	d, err := calendar.ParseKey(c.lastComplete)
	return d, err == nil
}

// Save stores one day and persists the cache.
func (c *Cache) Save(ctx context.Context, day time.Time, s Snapshot) error {
	return c.SaveBatch(ctx, map[time.Time]Snapshot{day: s})
}

// SaveBatch stores several days with one write. Either every day is stored
// or, on a write failure, none is.
//
// RetryCount is carried over from the stored day: a complete snapshot keeps
// it, an incomplete one records one more attempt.
func (c *Cache) SaveBatch(ctx context.Context, batch map[time.Time]Snapshot) error {
	if len(batch) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prevDays := c.cloneDays()
	prevLast := c.lastComplete

	for day, s := range batch {
		key := calendar.Key(day)
		s = s.clone()
		prior, had := c.days[key]
		switch {
		case s.Complete && had:
			s.RetryCount = prior.RetryCount
		case s.Complete:
			s.RetryCount = 0
		case had:
			s.RetryCount = prior.RetryCount + 1
		default:
			s.RetryCount = 1
		}
		if s.ComputedAt.IsZero() {
			s.ComputedAt = c.now().UTC()
		}
		c.days[key] = s
	}
	c.refreshLastComplete()

	if err := c.persist(ctx); err != nil {
		if !errors.Is(err, ErrCacheReset) {
			c.days = prevDays
			c.lastComplete = prevLast
		}
		return err
	}
	return nil
}

// InvalidateFrom drops every stored day on or after day and returns how many
// were dropped. The in-memory drop stands even when the write fails; the
// next successful write carries it.
func (c *Cache) InvalidateFrom(ctx context.Context, day time.Time) (int, error) {
	from := calendar.Key(day)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.days {
		if k >= from {
			delete(c.days, k)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	c.refreshLastComplete()
	c.log.Debug("snapshot cache invalidated", zap.String("from", from), zap.Int("days", n))
	return n, c.persist(ctx)
}

// ClearAll empties the cache and removes it from the store.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()
	if err := c.store.Remove(ctx, c.key); err != nil {
		return fmt.Errorf("remove snapshot cache: %w", err)
	}
	return nil
}

// FindMissingDays returns the business days in [start, end] without a
// complete snapshot, ascending. Incomplete days are included.
func (c *Cache) FindMissingDays(start, end time.Time) []time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []time.Time
	for d := range calendar.BusinessDays(start, end) {
		if s, ok := c.days[calendar.Key(d)]; !ok || !s.Complete {
			out = append(out, d)
		}
	}
	return out
}

// Retryable returns the incomplete days that still have attempts left,
// ascending.
func (c *Cache) Retryable() []time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []time.Time
	for _, k := range sortedDayKeys(c.days) {
		s := c.days[k]
		if s.Complete || s.RetryCount >= c.maxRetries {
			continue
		}
		d, _ := calendar.ParseKey(k)
		out = append(out, d)
	}
	return out
}

// persist writes the document. On a quota error the oldest half of the days
// is dropped and the write retried once; if that fails too the cache is
// cleared and ErrCacheReset returned. Callers hold mu.
func (c *Cache) persist(ctx context.Context) error {
	err := c.write(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, kvstore.ErrQuotaExceeded) {
		return fmt.Errorf("persist snapshot cache: %w", err)
	}

	dropped := c.dropOldestHalf()
	c.log.Warn("snapshot cache over quota, dropped oldest days", zap.Int("dropped", dropped), zap.Int("kept", len(c.days)))
	if err = c.write(ctx); err == nil {
		return nil
	}

	c.log.Error("snapshot cache still over quota, clearing", zap.Error(err))
	c.reset()
	if rerr := c.store.Remove(ctx, c.key); rerr != nil {
		c.log.Warn("remove snapshot cache", zap.Error(rerr))
	}
	return fmt.Errorf("%w: %w", ErrCacheReset, err)
}

func (c *Cache) write(ctx context.Context) error {
	data, err := json.Marshal(document{
		SchemaVersion:          SchemaVersion,
		LastCompleteTradingDay: c.lastComplete,
		Snapshots:              c.days,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot cache: %w", err)
	}
	return c.store.Set(ctx, c.key, data)
}

func (c *Cache) dropOldestHalf() int {
	keys := sortedDayKeys(c.days)
	n := len(keys) / 2
	if n == 0 && len(keys) > 0 {
		n = 1
	}
	for _, k := range keys[:n] {
		delete(c.days, k)
	}
	c.refreshLastComplete()
	return n
}

func (c *Cache) refreshLastComplete() {
	c.lastComplete = ""
	for k, s := range c.days {
		if s.Complete && k > c.lastComplete {
			c.lastComplete = k
		}
	}
}

func (c *Cache) reset() {
	c.days = map[string]Snapshot{}
	c.lastComplete = ""
}

func (c *Cache) cloneDays() map[string]Snapshot {
	out := make(map[string]Snapshot, len(c.days))
	for k, v := range c.days {
		out[k] = v
	}
	return out
}
