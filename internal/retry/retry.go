// Package retry wraps flaky external calls in bounded retries with backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // exponential backoff between attempts
}

// ErrGaveUp marks a call that exhausted its retry budget. Callers use
// errors.Is to turn it into a typed skip rather than a run failure.
var ErrGaveUp = errors.New("retry budget exhausted")

// Do invokes fn until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. The terminal error wraps both ErrGaveUp and the last underlying
// error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if attempt == cfg.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, cfg.MaxAttempts, err)
			}

			delay := cfg.Delay
			if cfg.Backoff {
				delay = cfg.Delay << (attempt - 1)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		return nil
	}

	return lastErr
}
