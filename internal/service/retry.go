package service

import (
	"context"
	"math"
	"time"

	"pdf-vision-extractor/internal/domain"
)

// RetryPolicy decides how often and how long to wait between extraction attempts
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Retryable defaults to domain.IsTransient
	Retryable func(error) bool
}

// Backoff returns the wait after the given failed attempt (1-based):
// base * 2^(attempt-1), capped at MaxBackoff when set.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return domain.IsTransient(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs out of
// attempts. It returns the number of attempts made alongside the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts || !p.shouldRetry(lastErr) {
			return attempt, lastErr
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}
	return attempts, lastErr
}
