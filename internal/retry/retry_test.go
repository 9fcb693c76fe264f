package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestDelayGrowsExponentiallyAndCaps(t *testing.T) {
	p := Policy{
		MaxAttempts:       10,
		InitialDelay:      1000 * time.Millisecond,
		MaxDelay:          10000 * time.Millisecond,
		BackoffMultiplier: 2,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for i, expected := range want {
		assert.Equal(t, expected, p.Delay(i+1), "attempt %d", i+1)
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	e := New(zap.NewNop())

	calls := 0
	err := e.Do(context.Background(), testPolicy(5), "scan", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	e := New(zap.NewNop())

	calls := 0
	err := e.Do(context.Background(), testPolicy(5), "scan", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoShortCircuitsNonRetryable(t *testing.T) {
	e := New(zap.NewNop())
	permanent := errors.New("syntax error at or near \"SELCT\"")

	calls := 0
	err := e.Do(context.Background(), testPolicy(5), "scan", func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, permanent, err, "the error propagates unchanged")
	assert.Equal(t, 1, calls, "non-retryable errors must not be re-attempted")
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	e := New(zap.NewNop())
	transient := errors.New("connection refused")

	calls := 0
	err := e.Do(context.Background(), testPolicy(3), "scan", func(ctx context.Context) error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.Equal(t, transient, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	e := New(zap.NewNop())

	p := Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Minute, // would stall the test if ignored
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := e.Do(ctx, p, "scan", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
