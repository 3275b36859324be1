// Package retry wraps a single provider call with bounded linear backoff.
//
// The policy is intentionally blunt: any error triggers a retry, there is no
// jitter and no error classification, and the final failing attempt
// propagates its error unmodified. Narrowing the retried error classes would
// be a behavior change and must not be done silently.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy controls attempt count and backoff growth.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the sleep after the first failure; attempt n sleeps
	// BaseDelay * n.
	BaseDelay time.Duration
}

// Default is the production policy: 3 attempts with 1s then 2s between them.
var Default = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// OnRetry, when set, is called before each backoff sleep. Used for metrics.
type Option func(*options)

type options struct {
	onRetry func(attempt int, err error)
}

// WithOnRetry registers a callback invoked after each failed attempt that
// will be retried.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do runs fn until it succeeds or the attempt budget is exhausted, returning
// the value of the successful attempt or the error of the final one.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = Default.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = Default.BaseDelay
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		if o.onRetry != nil {
			o.onRetry(attempt, err)
		}
		slog.Debug("retrying after failed attempt",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"error", err,
		)

		timer := time.NewTimer(p.BaseDelay * time.Duration(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}
	return zero, lastErr
}
