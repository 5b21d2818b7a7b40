// Package retry provides bounded exponential-backoff retry for remote
// operations.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config holds retry behavior parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier scales the delay after each attempt.
	Multiplier float64
}

// DelayHinter is implemented by errors that carry a server-requested
// retry delay (e.g. a Retry-After header). A positive hint overrides
// the computed backoff for that attempt.
type DelayHinter interface {
	RetryAfter() time.Duration
}

// WithRetry runs fn up to cfg.MaxAttempts times, sleeping between
// attempts with exponential backoff. shouldRetry decides whether a
// failure is transient; a non-retryable error is returned immediately.
// Context cancellation aborts the wait and returns the context error.
func WithRetry[T any](ctx context.Context, cfg Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		wait := delay
		var hinter DelayHinter
		if errors.As(err, &hinter) {
			if hint := hinter.RetryAfter(); hint > 0 {
				wait = hint
			}
		}
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}

		delay = time.Duration(float64(delay) * multiplier)
	}

	return zero, lastErr
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
