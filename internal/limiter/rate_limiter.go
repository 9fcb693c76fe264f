// Package limiter rate-limits scan dispatch per scan type so a burst of due
// schedules cannot hammer the warehouse.
package limiter

import (
	"sync"
	"time"
)

// RateLimiter gates how often work of a given scan type may start.
type RateLimiter interface {
	// Allow reports whether a scan of the given type may start now
	Allow(scanType string) bool

	// SetLimit overrides the rate for one scan type
	SetLimit(scanType string, perSecond float64, burst int)
}

// LocalRateLimiter is an in-memory token bucket per scan type.
type LocalRateLimiter struct {
	mu           sync.Mutex
	limits       map[string]float64 // tokens refilled per second
	bursts       map[string]int
	tokens       map[string]float64
	lastRefill   map[string]time.Time
	defaultLimit float64
	defaultBurst int

	now func() time.Time
}

func NewLocalRateLimiter(defaultLimit float64, defaultBurst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limits:       make(map[string]float64),
		bursts:       make(map[string]int),
		tokens:       make(map[string]float64),
		lastRefill:   make(map[string]time.Time),
		defaultLimit: defaultLimit,
		defaultBurst: defaultBurst,
		now:          time.Now,
	}
}

// Allow consumes one token for scanType if available.
func (l *LocalRateLimiter) Allow(scanType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[scanType]
	if !ok {
		limit = l.defaultLimit
	}
	burst, ok := l.bursts[scanType]
	if !ok {
		burst = l.defaultBurst
	}

	now := l.now()
	tokens, seen := l.tokens[scanType]
	if !seen {
		tokens = float64(burst)
	} else {
		elapsed := now.Sub(l.lastRefill[scanType])
		tokens += elapsed.Seconds() * limit
		if tokens > float64(burst) {
			tokens = float64(burst)
		}
	}
	l.lastRefill[scanType] = now

	if tokens < 1 {
		l.tokens[scanType] = tokens
		return false
	}

	l.tokens[scanType] = tokens - 1
	return true
}

func (l *LocalRateLimiter) SetLimit(scanType string, perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limits[scanType] = perSecond
	l.bursts[scanType] = burst
	// Reset the bucket so the new burst applies immediately.
	delete(l.tokens, scanType)
	delete(l.lastRefill, scanType)
}
