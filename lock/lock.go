// Package lock provides named, expiring mutual exclusion shared across
// processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when the lock could not be obtained within the
	// caller's wait budget.
	ErrTimeout = errors.New("lock acquisition timed out")
	// ErrNotHeld is returned on release when the lease expired and the key
	// now belongs to someone else or nobody.
	ErrNotHeld = errors.New("lock no longer held")
)

// Lease is a held lock
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker acquires leases. ttl bounds how long a crashed holder can block
// others; wait bounds how long Acquire blocks.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error)
}
