// Package retry provides a small declarative retry policy: a fixed number of
// attempts, a linear backoff, and a predicate deciding which errors are worth
// retrying. Call sites stay free of hand-rolled loops.
package retry

import (
	"context"
	"time"
)

// Config parameterizes a retry policy for one call site.
type Config struct {
	// Attempts is the total number of tries, including the first one.
	// Values below 1 are treated as 1.
	Attempts int

	// BaseDelay is multiplied by the attempt number to produce the pause
	// before the next try (linear backoff). Zero means no pause.
	BaseDelay time.Duration

	// Retryable decides whether an error justifies another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// Do runs fn under the policy. It returns nil on the first success, the last
// error once attempts are exhausted or the error is not retryable, and the
// context error if the context ends while waiting between attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := cfg.BaseDelay * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}
