// Package retry provides the bounded re-invocation loop used at the domain layer,
// on top of whatever the transport already retried.
package retry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Policy names an operation and its retry ceiling. Attempts = MaxRetries + 1.
type Policy struct {
	Op         string
	MaxRetries int
	Logger     *zap.Logger
}

// ExhaustedError is returned once every attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
	All      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

// Unwrap exposes the last underlying cause.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do invokes fn until it succeeds, the ceiling is reached, ctx is done, or fn returns
// a Permanent error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var all error
	var last error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", p.Op, err)
		}
		attempts++
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return zero, fmt.Errorf("%s: %w", p.Op, perm.err)
		}
		last = err
		all = multierr.Append(all, fmt.Errorf("attempt %d: %w", attempts, err))
		if attempt < maxRetries {
			logger.Warn("retrying operation",
				zap.String("op", p.Op),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
		}
	}
	return zero, &ExhaustedError{Op: p.Op, Attempts: attempts, Last: last, All: all}
}
