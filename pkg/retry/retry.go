// Package retry provides a fixed-count, fixed-delay retry policy. Delays do
// not grow between attempts; callers that need a different cadence use a
// different Policy value rather than backoff math.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how often an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// ExhaustedError reports that every attempt failed. It wraps the error of the
// final attempt so callers can still inspect the underlying cause.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type stopError struct {
	err error
}

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Stop wraps err so Do returns it immediately instead of retrying. Use it for
// conditions that further attempts cannot change, like an on-chain revert.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do runs op until it succeeds, the policy is exhausted, op returns a stopped
// error, or ctx is done. Context errors are returned as-is so cancellation
// stays distinguishable from failure.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		var stopped *stopError
		if errors.As(last, &stopped) {
			return stopped.err
		}
		if errors.Is(last, context.Canceled) || errors.Is(last, context.DeadlineExceeded) {
			return last
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}
