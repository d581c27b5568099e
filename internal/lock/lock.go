// Package lock serializes updates that share a scratch mount directory.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a lock is not acquired before the deadline.
var ErrTimeout = errors.New("timed out waiting for lock")

// pollInterval is how often a contended lock is retried.
const pollInterval = 100 * time.Millisecond

// Locker provides advisory locking keyed by a filesystem path.
// AcquireLock blocks until the lock is held or ctx is done.
type Locker interface {
	AcquireLock(ctx context.Context, path string) (Lock, error)
}

// Lock represents an acquired lock that must be released
type Lock interface {
	Release() error
}
