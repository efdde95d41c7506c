package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veloradata/chainstream/internal/metrics"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultSweepInterval = time.Minute
)

// Key builds a cache key from an operation type and its identifying
// parameters. Parameters are joined in caller order; callers are expected
// to pass them in a stable order.
func Key(operation string, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, operation)
	parts = append(parts, params...)
	return strings.Join(parts, "|")
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL cache for upstream responses. Concurrent lookups for the
// same missing key are collapsed into a single fetch, so a burst of
// identical requests costs one provider call instead of one per caller.
type Cache[V any] struct {
	mutex   sync.RWMutex
	entries map[string]entry[V]

	ttl       time.Duration
	sweep     time.Duration
	logger    *slog.Logger
	collector *metrics.Collector
	group     singleflight.Group

	now func() time.Time
}

func New[V any](ttl, sweepInterval time.Duration, logger *slog.Logger, collector *metrics.Collector) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Cache[V]{
		entries:   make(map[string]entry[V]),
		ttl:       ttl,
		sweep:     sweepInterval,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Get returns the cached value for a key if it exists and has not expired.
// Expired entries are left for the sweeper.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	ent, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists || c.now().After(ent.expiresAt) {
		var zero V
		return zero, false
	}
	return ent.value, true
}

// Set stores a value under a key for the cache's TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// GetOrFetch returns the cached value for a key, fetching and caching it on
// a miss. Concurrent callers for the same key share one in-flight fetch;
// a fetch error is returned to every waiter and nothing is cached.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		c.collector.Emit(metrics.Event{Type: metrics.EventCacheHit})
		return value, nil
	}

	c.collector.Emit(metrics.Event{Type: metrics.EventCacheMiss})

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another waiter may have populated the entry while this caller
		// queued on the flight group.
		if value, ok := c.Get(key); ok {
			return value, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate removes a key immediately.
func (c *Cache[V]) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

// Len reports the number of resident entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Start runs the expiry sweeper until the context is cancelled.
func (c *Cache[V]) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cache[V]) run(ctx context.Context) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := c.evictExpired()
			if removed > 0 && c.logger != nil {
				c.logger.Debug("Swept expired cache entries",
					slog.Int("removed", removed),
					slog.Int("resident", c.Len()))
			}
		}
	}
}

func (c *Cache[V]) evictExpired() int {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, ent := range c.entries {
		if now.After(ent.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
