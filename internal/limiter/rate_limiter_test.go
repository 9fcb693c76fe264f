package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := NewLocalRateLimiter(1, 2)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("checks"))
	assert.True(t, l.Allow("checks"))
	assert.False(t, l.Allow("checks"), "burst exhausted")
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := NewLocalRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("checks"))
	assert.False(t, l.Allow("checks"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("checks"), "one token refilled after one second at rate 1/s")
	assert.False(t, l.Allow("checks"))
}

func TestRefillIsCappedAtBurst(t *testing.T) {
	l := NewLocalRateLimiter(10, 2)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("checks"))
	assert.True(t, l.Allow("checks"))

	// A long idle period refills at most burst tokens.
	now = now.Add(time.Hour)
	assert.True(t, l.Allow("checks"))
	assert.True(t, l.Allow("checks"))
	assert.False(t, l.Allow("checks"))
}

func TestScanTypesHaveIndependentBuckets(t *testing.T) {
	l := NewLocalRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("checks"))
	assert.False(t, l.Allow("checks"))
	assert.True(t, l.Allow("profiling"), "exhausting one type must not starve another")
}

func TestSetLimitOverridesOneType(t *testing.T) {
	l := NewLocalRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.SetLimit("full", 0.5, 3)

	assert.True(t, l.Allow("full"))
	assert.True(t, l.Allow("full"))
	assert.True(t, l.Allow("full"))
	assert.False(t, l.Allow("full"))

	// The default applies to every other type.
	assert.True(t, l.Allow("checks"))
	assert.False(t, l.Allow("checks"))
}
