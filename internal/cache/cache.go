// Package cache is a process-wide key/value store with per-entry expiry,
// used to memoize expensive warehouse reads for a bounded window. Expired
// entries are removed lazily by the Get that discovers them; there is no
// background sweep.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TTL tiers. Policy lives at the call site, not in the cache.
const (
	TTLFast      = 30 * time.Second // fast-changing metrics
	TTLReference = 5 * time.Minute  // reference data
	TTLStatic    = time.Hour        // static data
)

type entry struct {
	data      any
	expiresAt time.Time
}

// Stats reports cache effectiveness counters and the live entry count.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cache is safe for concurrent use. Two concurrent misses for the same key
// may both invoke their fetch function; last write wins. That is accepted
// because the memoized reads are idempotent and staleness is bounded by TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	hits   int64
	misses int64

	now func() time.Time // injectable clock
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock builds a cache whose notion of "now" comes from the given
// function. Used by tests to advance time without sleeping.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the stored value unless it is missing or past its expiry, in
// which case the stale entry is deleted and the miss reported.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return e.data, true
}

// Set unconditionally overwrites key with value for the given TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{data: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// FetchFunc loads the value on a cache miss. It may block on I/O.
type FetchFunc func(ctx context.Context) (any, error)

// GetOrSet returns the cached value for key, or invokes fetch, stores the
// result for ttl and returns it. No single-flight de-duplication is done.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(key, v, ttl)
	return v, nil
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Keys returns the keys of the live (non-expired) entries.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	live := 0
	for _, e := range c.entries {
		if !now.After(e.expiresAt) {
			live++
		}
	}

	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: live,
	}
}
