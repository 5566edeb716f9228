package tour

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for failing page actions.
type RetryConfig struct {
	MaxRetries int           // max retry attempts (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // maximum backoff delay
}

// DefaultRetryConfig returns the retry policy used for page actions.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  150 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// executeWithRetry runs fn, retrying on error with exponential backoff and
// jitter. It stops early when ctx is done.
func executeWithRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) (attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, err
		}

		if attempt < cfg.MaxRetries {
			timer := time.NewTimer(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt + 1, err
			case <-timer.C:
			}
		}
	}
	return cfg.MaxRetries + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
