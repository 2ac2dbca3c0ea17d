// Package retry implements the exponential-backoff primitive shared by every
// tool that calls an external backend (C5). Classification is pure: the
// classifier only inspects the error, never performs I/O.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/deckgen/deckgen/internal/toolerr"
)

// Policy configures backoff behavior. Delays follow base * 2^i, capped at Max.
type Policy struct {
	// Attempts is the total number of tries, including the first. Defaults to
	// 4 when zero or negative.
	Attempts int
	// Base is the initial delay before the first retry.
	Base time.Duration
	// Max caps any single delay.
	Max time.Duration
}

// DefaultPolicy matches spec.md §4.5: attempts=4, base=0.6s, cap=10s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 4, Base: 600 * time.Millisecond, Max: 10 * time.Second}
}

// Classifier decides whether err warrants another attempt. Implementations
// must be pure; Do performs all side effects (sleeping, re-invoking).
type Classifier func(err error) bool

// IsRetryableToolErr is the default classifier: only *toolerr.Error values
// tagged Transient are retried.
func IsRetryableToolErr(err error) bool {
	te, ok := err.(*toolerr.Error)
	return ok && te.Retryable()
}

// AlwaysRetryable treats every non-nil error as retryable.
func AlwaysRetryable(err error) bool {
	return err != nil
}

// ExhaustedError is returned when every attempt fails.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Do runs fn, retrying per policy when classify reports the returned error as
// retryable. It sleeps base*2^(attempt-1), capped at Max, between attempts.
// No locks are held across the sleep (spec.md §5 "Suspension points").
func Do(ctx context.Context, policy Policy, classify Classifier, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 4
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt >= attempts {
			break
		}

		delay := backoff(policy, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

func backoff(policy Policy, attempt int) time.Duration {
	base := policy.Base
	if base <= 0 {
		base = 600 * time.Millisecond
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if policy.Max > 0 && d > float64(policy.Max) {
		d = float64(policy.Max)
	}
	return time.Duration(d)
}
