// Package retry provides bounded retry with optional exponential backoff.
package retry

import (
	"context"
	"time"
)

// Options configures a retry loop.
type Options struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is the wait after the first failure.
	Delay time.Duration
	// Backoff doubles the delay after each failed attempt.
	Backoff bool
	// OnRetry is invoked after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

const (
	defaultMaxAttempts = 3
	defaultDelay       = time.Second
)

// Do runs fn until it succeeds, attempts are exhausted, or the context is
// cancelled. The last error is returned on exhaustion; context errors win
// over attempt errors.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == opts.MaxAttempts {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}

		delay := opts.Delay
		if opts.Backoff {
			delay = opts.Delay << (attempt - 1)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
