package versioning

import (
	"context"
	"fmt"
)

// Mutation is one of CreateIntent, UpdateIntent or DeleteIntent.
type Mutation interface {
	isMutation()
}

// CreateIntent creates Record with version 1.
type CreateIntent struct {
	Record *LiveRecord
}

// UpdateIntent replaces the payload of Record, guarded by Record.Version.
type UpdateIntent struct {
	Record    *LiveRecord
	ChangedBy string
}

// DeleteIntent removes Record, guarded by Record.Version.
type DeleteIntent struct {
	Record    *LiveRecord
	ChangedBy string
}

func (CreateIntent) isMutation() {}
func (UpdateIntent) isMutation() {}
func (DeleteIntent) isMutation() {}

// Apply dispatches a mutation intent to Create, Update or Delete.
func (g *Guard) Apply(ctx context.Context, m Mutation) error {
	return Dispatch(ctx, g, m)
}

// Dispatch calls the method of target matching the intent m.
// Intents may be passed as values or pointers.
func Dispatch(ctx context.Context, target Mutator, m Mutation) error {
	switch m := m.(type) {
	case CreateIntent:
		return target.Create(ctx, m.Record)
	case *CreateIntent:
		return target.Create(ctx, m.Record)
	case UpdateIntent:
		return target.Update(ctx, m.Record, m.ChangedBy)
	case *UpdateIntent:
		return target.Update(ctx, m.Record, m.ChangedBy)
	case DeleteIntent:
		return target.Delete(ctx, m.Record, m.ChangedBy)
	case *DeleteIntent:
		return target.Delete(ctx, m.Record, m.ChangedBy)
	default:
		return newError(ErrInvalidRecord, "apply", "", 0, fmt.Errorf("unknown mutation %T", m))
	}
}
