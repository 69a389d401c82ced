// Package relcache holds the relation cache: canonical relation key to the
// identifiers and total of the last successful fetch for that relation.
//
// There is no merge logic and no eviction: Put fully replaces the entry for
// its key, and entries live as long as the Cache. Reads return copies, so
// the ids and total of one entry version are always observed together.
package relcache

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
	"github.com/roach88/relq/internal/metrics"
)

// Entry is the cached state of one relation.
type Entry struct {
	// IDs in the order returned by the fetch that wrote the entry.
	IDs []ir.ID
	// Total is the server-reported count, independent of page size.
	Total int
	// Version is the logical settlement sequence of the writing fetch.
	Version int64
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	return Entry{IDs: slices.Clone(e.IDs), Total: e.Total, Version: e.Version}
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records lookups and size on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithOnPut registers a callback invoked after every Put, outside the lock.
func WithOnPut(fn func(key keys.Key, entry Entry)) Option {
	return func(c *Cache) {
		c.onPut = append(c.onPut, fn)
	}
}

// Cache is a thread-safe relation cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[keys.Key]Entry

	stats   Stats
	metrics *metrics.Metrics
	onPut   []func(keys.Key, Entry)
}

// New creates an empty relation cache.
func New(opts ...Option) *Cache {
	c := &Cache{entries: make(map[keys.Key]Entry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key keys.Key) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	if ok {
		e = e.Clone()
	}
	c.mu.RUnlock()

	c.stats.lookup(ok)
	c.metrics.CacheLookup(ok)
	return e, ok
}

// Peek is Get without touching statistics. Used by recomposition, which
// would otherwise count every notification as a lookup.
func (c *Cache) Peek(key keys.Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

// Put replaces the entry for key.
func (c *Cache) Put(key keys.Key, entry Entry) {
	stored := entry.Clone()

	c.mu.Lock()
	c.entries[key] = stored
	size := len(c.entries)
	c.mu.Unlock()

	c.stats.puts.Add(1)
	c.metrics.CacheSize(size)

	for _, fn := range c.onPut {
		fn(key, stored.Clone())
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all keys in sorted order.
func (c *Cache) Keys() []keys.Key {
	c.mu.RLock()
	out := make([]keys.Key, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	c.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() StatsSnapshot {
	return c.stats.snapshot()
}

// Stats tracks cache activity. Always on.
type Stats struct {
	hits   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
}

func (s *Stats) lookup(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Puts:   s.puts.Load(),
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Puts   int64 `json:"puts"`
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (s StatsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
