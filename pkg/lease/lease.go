// Package lease provides short-lived execution locks so that only one
// worker processes a given workflow execution at a time.
package lease

import (
	"context"
	"errors"
	"time"
)

// ErrLeaseHeld is returned when another owner currently holds the lease.
var ErrLeaseHeld = errors.New("lease already held")

// Store acquires and releases execution leases. Acquire returns
// ErrLeaseHeld when a different owner holds the key; schedulers treat
// that as contention and skip the execution silently.
type Store interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) error
	Renew(ctx context.Context, key, owner string, ttl time.Duration) error
	Release(ctx context.Context, key, owner string) error
}
