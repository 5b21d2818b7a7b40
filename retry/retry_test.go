package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), fastConfig(3), nil, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWithRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), fastConfig(4), nil, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("Expected ok after 3 calls, got %q after %d", result, calls)
	}
}

func TestWithRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")
	_, err := WithRetry(context.Background(), fastConfig(3), nil, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	_, err := WithRetry(context.Background(), fastConfig(5), func(err error) bool {
		return !errors.Is(err, fatal)
	}, func() (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithRetry(ctx, fastConfig(3), nil, func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no calls after cancellation, got %d", calls)
	}
}

func TestWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxAttempts: 3, InitialDelay: time.Minute}
	done := make(chan error, 1)
	go func() {
		_, err := WithRetry(ctx, cfg, nil, func() (int, error) {
			return 0, errors.New("transient")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WithRetry did not return after cancellation")
	}
}

type hintedError struct {
	hint time.Duration
}

func (e *hintedError) Error() string             { return "rate limited" }
func (e *hintedError) RetryAfter() time.Duration { return e.hint }

func TestWithRetry_HonorsDelayHint(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := WithRetry(context.Background(), Config{MaxAttempts: 2, InitialDelay: 0}, nil, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, &hintedError{hint: 20 * time.Millisecond}
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected hinted delay to apply, elapsed %v", elapsed)
	}
}
