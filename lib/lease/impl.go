package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/google/uuid"
)

// Field names of a lease document.
const (
	fieldOwner     = "owner"
	fieldExpiresAt = "expiresAt"
)

type leaseMgrImpl struct {
	store      docstore.IDocStore
	collection string
	now        func() time.Time
}

// NewLeaseManager creates a lease manager storing its leases as documents in the given collection.
// If now is nil, time.Now is used.
func NewLeaseManager(store docstore.IDocStore, collection string, now func() time.Time) ILeaseManager {
	if now == nil {
		now = time.Now
	}
	return &leaseMgrImpl{
		store:      store,
		collection: collection,
		now:        now,
	}
}

func (lm *leaseMgrImpl) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	if key == "" || strings.Contains(key, "#") {
		return false, "", fmt.Errorf("invalid lease key %q", key)
	}

	owner, err := uuid.NewRandom()
	if err != nil {
		return false, "", err
	}
	ownerID := owner.String()

	// the first attempt may find an expired lease, which is then removed and retried once
	for attempt := 0; attempt < 2; attempt++ {
		now := lm.now()
		leaseDoc := docstore.Document{
			docstore.IDField:      key,
			docstore.VersionField: now.UnixNano(),
			fieldOwner:            ownerID,
			fieldExpiresAt:        now.Add(ttl).UnixMilli(),
		}

		// Try to acquire the lease (insert only succeeds if the key does not exist - atomic operation)
		err = lm.store.Insert(ctx, lm.collection, leaseDoc)
		if err == nil {
			return true, ownerID, nil
		}
		if !docstore.IsDuplicateKey(err) {
			return false, "", err
		}

		// The lease exists, check if it is expired
		current, err := lm.store.Get(ctx, lm.collection, key)
		if docstore.IsNotFound(err) {
			continue // released in the meantime
		}
		if err != nil {
			return false, "", err
		}
		expiresAt, _ := docstore.AsInt64(current[fieldExpiresAt])
		if expiresAt > now.UnixMilli() {
			return false, "", nil // held by someone else
		}

		// Remove the expired lease, but only the exact one we looked at
		stamp, _ := current.Version()
		err = lm.store.RemoveIfVersion(ctx, lm.collection, key, stamp)
		if err != nil && !docstore.IsNotFound(err) && !docstore.IsPreconditionFailed(err) {
			return false, "", err
		}
	}

	return false, "", nil
}

func (lm *leaseMgrImpl) Release(ctx context.Context, key string, ownerID string) (bool, error) {
	// Check if the lease exists
	current, err := lm.store.Get(ctx, lm.collection, key)
	if docstore.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// Check if the lease is owned by us
	if owner, _ := current[fieldOwner].(string); owner != ownerID {
		return false, nil
	}

	// Release the lease, the version guard makes sure a takeover in between is not removed
	stamp, _ := current.Version()
	err = lm.store.RemoveIfVersion(ctx, lm.collection, key, stamp)
	switch {
	case err == nil, docstore.IsNotFound(err):
		return true, nil
	case docstore.IsPreconditionFailed(err):
		return false, nil
	default:
		return false, err
	}
}
