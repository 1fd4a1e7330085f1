package versioning

import "context"

// Mutator applies the mutations of a versioned collection.
type Mutator interface {
	Create(ctx context.Context, rec *LiveRecord) error
	Update(ctx context.Context, rec *LiveRecord, changedBy string) error
	Delete(ctx context.Context, rec *LiveRecord, changedBy string) error
}

// Collection is a versioned collection. It is implemented by *Guard and by the
// RPC client of a guard running on a server, both report errors as *Error.
type Collection interface {
	Mutator
	// Apply dispatches a mutation intent, see Dispatch.
	Apply(ctx context.Context, m Mutation) error
	// Get returns the persisted live record.
	Get(ctx context.Context, id string) (LiveRecord, error)
	// History returns the history records of id in version order.
	History(ctx context.Context, id string) ([]HistoryRecord, error)
}

var _ Collection = (*Guard)(nil)
