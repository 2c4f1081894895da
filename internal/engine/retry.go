package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy controls how often a failed write is attempted before the
// definition is skipped for the current pass.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // multiplied by the attempt number
}

// DefaultRetryPolicy tries each write three times.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

// Do calls fn until it succeeds, the attempts are exhausted, the context ends,
// or fn returns ErrStaleDefinition. Exhaustion wraps the last error with
// ErrPersistenceFailure.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrStaleDefinition) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPersistenceFailure, ctx.Err())
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrPersistenceFailure, attempts, err)
}
