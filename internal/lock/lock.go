// Package lock provides short-lived named locks that serialize work on one
// document across goroutines or API instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotObtained is returned when the lock is still held by someone else once
// the wait budget is spent.
var ErrNotObtained = errors.New("lock not obtained")

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains named locks. A lease expires on its own after ttl.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
