package lease

import (
	"context"
	"time"
)

// ILeaseManager defines the interface for a lease provider.
// A lease is a lock with a time to live. An expired lease may be taken over by
// the next caller, so a crashed holder never blocks a key forever.
type ILeaseManager interface {
	// Acquire tries to acquire the lease for the given key without waiting.
	// Return a boolean indicating whether the lease was acquired, an owner ID, and an error if any.
	// A lease held by someone else is not an error: ok is false and err is nil.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ok bool, ownerID string, err error)

	// Release releases the lease for the given key.
	// Return a boolean indicating whether the lease was released, and an error if any.
	// The method will also return true if the lease did not exist.
	Release(ctx context.Context, key string, ownerID string) (ok bool, err error)
}
