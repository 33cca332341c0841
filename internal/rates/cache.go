package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is how long a fetched table is served before a refresh.
	DefaultTTL = time.Hour
	// DefaultRefreshTimeout bounds a single refresh including every upstream call.
	DefaultRefreshTimeout = 15 * time.Second
)

// ErrCacheClosed is returned by Rates after Shutdown.
var ErrCacheClosed = errors.New("rate cache closed")

// Source produces a fresh rate table.
type Source interface {
	Fetch(ctx context.Context) (Table, error)
}

// Entry is a published table together with the time it was obtained.
type Entry struct {
	Table     Table
	FetchedAt time.Time
	TTL       time.Duration
	Fallback  bool
}

// Fresh reports whether the entry may still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// CacheOptions tune cache behaviour.
type CacheOptions struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	Fallback       Table
	Now            func() time.Time
	// OnRefresh is called after every refresh with the published entry and
	// the source error, if any. It runs while the refresh lock is held.
	OnRefresh func(entry Entry, err error)
}

// Cache serves the last published rate table and refreshes it on demand.
// At most one refresh runs at a time; callers that observe a stale or absent
// entry wait for it and then read the newly published entry.
type Cache struct {
	source Source
	opts   CacheOptions
	logger zerolog.Logger

	mu     sync.Mutex
	entry  atomic.Pointer[Entry]
	closed atomic.Bool
}

// NewCache builds an empty cache. The first call to Rates blocks on a refresh.
func NewCache(source Source, opts CacheOptions, logger zerolog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.Fallback.IsZero() {
		opts.Fallback = FallbackTable()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "rate_cache").Logger(),
	}
}

// Rates returns the current entry, refreshing it first when it is absent or
// stale. A failed refresh publishes the fallback table instead, so the only
// error is ErrCacheClosed.
func (c *Cache) Rates(ctx context.Context) (Entry, error) {
	if c.closed.Load() {
		return Entry{}, ErrCacheClosed
	}
	if e := c.entry.Load(); e != nil && e.Fresh(c.opts.Now()) {
		return *e, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return Entry{}, ErrCacheClosed
	}
	// a concurrent caller may have refreshed while we waited for the lock
	if e := c.entry.Load(); e != nil && e.Fresh(c.opts.Now()) {
		return *e, nil
	}

	return c.refresh(ctx), nil
}

// Peek returns the published entry without refreshing it.
func (c *Cache) Peek() (Entry, bool) {
	e := c.entry.Load()
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Shutdown stops the cache from serving further requests. It waits for an
// in-flight refresh to finish or ctx to expire.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.closed.Store(true)

	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		c.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info().Msg("rate cache stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) refresh(ctx context.Context) Entry {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
	defer cancel()

	c.logger.Debug().Msg("refreshing rate table")
	table, err := c.source.Fetch(fetchCtx)
	if err == nil && table.IsZero() {
		err = ErrEmptyTable
	}

	entry := Entry{Table: table, FetchedAt: c.opts.Now(), TTL: c.opts.TTL}
	if err != nil {
		entry.Table = c.opts.Fallback
		entry.Fallback = true
		c.logger.Warn().Err(err).Int("currencies", entry.Table.Len()).Msg("rate source failed; serving fallback table")
	} else {
		c.logger.Info().Int("currencies", table.Len()).Time("fetched_at", entry.FetchedAt).Msg("rate table refreshed")
	}

	c.entry.Store(&entry)
	if c.opts.OnRefresh != nil {
		c.opts.OnRefresh(entry, err)
	}
	return entry
}
