package errors

import (
	"context"
	"fmt"
	"time"

	"mnemo/internal/logging"
)

// RetryConfig configures retry behavior. Delays grow linearly:
// BaseDelay before the second attempt, BaseDelay+DelayStep before the
// third, and so on.
type RetryConfig struct {
	MaxAttempts int           // Total attempt budget (default: 3)
	BaseDelay   time.Duration // Delay before the first retry (default: 1s)
	DelayStep   time.Duration // Added to the delay after each retry (default: 1s)
}

// DefaultRetryConfig returns the interactive-chat retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		DelayStep:   1 * time.Second,
	}
}

// SingleAttemptConfig returns the budget used by consolidation: one try,
// no backoff.
func SingleAttemptConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// delayBefore returns the wait before the given retry (retry 1 is the
// second attempt).
func (c RetryConfig) delayBefore(retry int) time.Duration {
	return c.BaseDelay + time.Duration(retry-1)*c.DelayStep
}

// RetryWithResult executes fn with linear-backoff retries. Only transient
// errors are retried; anything else propagates immediately. When the
// budget is exhausted the last error is returned.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, config, fn, nil)
}

// RetryWithResultAndLog is RetryWithResult with a caller-supplied logger.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger *logging.Logger) (T, error) {
	if logger == nil {
		logger = logging.NewComponentLogger("retry")
	}

	attempts := config.attempts()

	var lastErr error
	var zeroValue T

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, stopping retries")
			return zeroValue, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		logger.Debug("Executing (attempt %d/%d)", attempt, attempts)

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d failed: %v", attempt, err)

		if !IsTransient(err) {
			logger.Debug("Error is not transient, stopping retries")
			return zeroValue, err
		}

		if attempt == attempts {
			logger.Warn("Retry budget (%d) exhausted", attempts)
			break
		}

		delay := config.delayBefore(attempt)
		logger.Debug("Waiting %v before next attempt", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Debug("Context cancelled during backoff")
			return zeroValue, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return zeroValue, lastErr
}

// Retry executes a result-less function with the same policy.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
