package lock

import (
	"context"
	"errors"
)

var (
	// ErrNotAcquired indicates that another checknode run holds the lock.
	ErrNotAcquired = errors.New("lock: not acquired")
)

// Manager guards entry into an orchestration pass.
type Manager interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Lease represents a held lock that can be released. Release must be safe to
// call more than once.
type Lease interface {
	Release(ctx context.Context) error
}
