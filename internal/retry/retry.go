// Package retry re-invokes failing operations with exponential backoff,
// short-circuiting on errors the classifier marks non-retryable.
package retry

import (
	"context"
	"time"

	"github.com/tableguard/tableguard/internal/errclass"
	"go.uber.org/zap"
)

// Policy is an immutable retry configuration supplied per call site.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy is the policy used when a call site has no opinion.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Delay returns the backoff before the attempt following `attempt`
// (1-based): InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffMultiplier
	}
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// Operation is a single attempt of the work being retried.
type Operation func(ctx context.Context) error

// Executor runs operations under a policy. The zero logger is not usable;
// construct with New.
type Executor struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Do runs op up to policy.MaxAttempts times. It returns nil on the first
// success, the error unchanged on the first non-retryable failure, and the
// last error once attempts are exhausted. The backoff sleep honors ctx, so a
// canceled context ends the sequence early.
func (e *Executor) Do(ctx context.Context, policy Policy, name string, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		lastErr = err

		c := errclass.Classify(err)
		if !c.Retryable {
			e.logger.Warn("Operation failed with non-retryable error",
				zap.String("operation", name),
				zap.String("kind", string(c.Kind)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		e.logger.Warn("Operation failed, backing off",
			zap.String("operation", name),
			zap.String("kind", string(c.Kind)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	e.logger.Error("Operation failed permanently",
		zap.String("operation", name),
		zap.Int("attempts", policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return lastErr
}
