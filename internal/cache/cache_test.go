package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetReturnsStoredValueBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	c.Set("row_count:analytics.public.orders", int64(42), time.Second)

	v, ok := c.Get("row_count:analytics.public.orders")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestGetMissesAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	c.Set("k", "v", time.Second)

	clock.Advance(1001 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "entry past its TTL must not be served")

	stats := c.GetStats()
	assert.Equal(t, 0, stats.Entries, "expired entry is removed on access")
}

func TestGetServesAtExactExpiryInstant(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	c.Set("k", "v", time.Second)
	clock.Advance(time.Second)

	// Expiry is strict: now must be after expiresAt, not equal to it.
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestSetOverwritesAndRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	c.Set("k", "old", time.Second)
	clock.Advance(900 * time.Millisecond)
	c.Set("k", "new", time.Second)
	clock.Advance(900 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok, "overwrite restarts the TTL")
	assert.Equal(t, "new", v)
}

func TestGetOrSetFetchesOnlyOnMiss(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	fetches := 0
	fetch := func(ctx context.Context) (any, error) {
		fetches++
		return "fetched", nil
	}

	v, err := c.GetOrSet(context.Background(), "k", TTLReference, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fetched", v)

	v, err = c.GetOrSet(context.Background(), "k", TTLReference, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fetched", v)
	assert.Equal(t, 1, fetches, "second call must be served from cache")
}

func TestGetOrSetDoesNotCacheFetchErrors(t *testing.T) {
	c := New()
	fetchErr := errors.New("warehouse unavailable")

	fetches := 0
	_, err := c.GetOrSet(context.Background(), "k", TTLFast, func(ctx context.Context) (any, error) {
		fetches++
		return nil, fetchErr
	})
	require.ErrorIs(t, err, fetchErr)

	v, err := c.GetOrSet(context.Background(), "k", TTLFast, func(ctx context.Context) (any, error) {
		fetches++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, fetches, "a failed fetch leaves the key uncached")
}

func TestDeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Empty(t, c.Keys())
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(clock.Now)

	c.Get("absent")
	c.Set("k", "v", time.Second)
	c.Get("k")
	c.Get("k")
	clock.Advance(2 * time.Second)
	c.Get("k")

	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 0, stats.Entries)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("shared", j, time.Minute)
				c.Get("shared")
				c.Keys()
			}
		}()
	}
	wg.Wait()

	_, ok := c.Get("shared")
	assert.True(t, ok)
}
