// Package retry classifies step failures and decides when a failed
// execution may run again.
package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks failures worth retrying: provider timeouts, rate
// limits, temporarily unreachable services.
var ErrTransient = errors.New("transient failure")

// ErrPermanent marks failures that retrying cannot fix: bad recipients,
// template render errors, configuration errors.
var ErrPermanent = errors.New("permanent failure")

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient so an unmapped provider failure is retried instead of
// failing the execution outright.
func IsTransient(err error) bool {
	if errors.Is(err, ErrPermanent) {
		return false
	}

	return true
}

// Policy holds the retry budget and backoff schedule for transient step
// failures.
type Policy struct {
	MaxRetries int
	Schedule   []time.Duration
}

// DefaultPolicy retries three times at increasing intervals before giving
// up.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Schedule:   []time.Duration{1 * time.Minute, 5 * time.Minute, 30 * time.Minute},
	}
}

// Backoff returns the delay before the given retry attempt (1-based). Past
// the end of the schedule it repeats the last interval.
func (p Policy) Backoff(attempt int) time.Duration {
	if len(p.Schedule) == 0 {
		return time.Minute
	}

	if attempt < 1 {
		attempt = 1
	}

	if attempt > len(p.Schedule) {
		return p.Schedule[len(p.Schedule)-1]
	}

	return p.Schedule[attempt-1]
}

// Exhausted reports whether the retry budget is spent after retryCount
// attempts.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}
