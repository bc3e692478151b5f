package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		DelayStep:   time.Millisecond,
	}
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("overloaded"), "")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %q", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := NewPermanentError(errors.New("bad request"), "")
	_, err := RetryWithResult(context.Background(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", permanent
	})
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
}

func TestRetryExhaustionSurfacesLastError(t *testing.T) {
	calls := 0
	var last error
	_, err := RetryWithResult(context.Background(), fastConfig(2), func(ctx context.Context) (string, error) {
		calls++
		last = NewTransientError(errors.New("unavailable"), "")
		return "", last
	})
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if err != last {
		t.Fatalf("expected last error to surface, got %v", err)
	}
}

func TestSingleAttemptConfigNeverRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), SingleAttemptConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("overloaded"), "")
	})
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := RetryWithResult(ctx, fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", nil
	})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if calls != 0 {
		t.Fatalf("cancelled context must not execute, got %d calls", calls)
	}
}

func TestDelayGrowsLinearly(t *testing.T) {
	config := RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		DelayStep:   time.Second,
	}
	expected := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for i, want := range expected {
		if got := config.delayBefore(i + 1); got != want {
			t.Errorf("delayBefore(%d) = %v, want %v", i+1, got, want)
		}
	}
}
