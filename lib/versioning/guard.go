package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/lease"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("versioning")

// Guard gates every mutation of the live collection on a version match and
// keeps the history collection in step with it.
//
// A Guard holds no per-record state. Several guards, also in other processes,
// may work on the same collections as long as they share the store.
type Guard struct {
	store   docstore.IDocStore
	leases  lease.ILeaseManager
	history *HistoryWriter
	opts    Options
}

// NewGuard creates a Guard for the live collection named in opts.
func NewGuard(store docstore.IDocStore, opts *Options) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("versioning: store must not be nil")
	}
	if opts == nil {
		return nil, fmt.Errorf("versioning: options must not be nil")
	}
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Guard{
		store:   store,
		leases:  lease.NewLeaseManager(store, o.LeaseCollection, o.Now),
		history: NewHistoryWriter(store, o.HistoryCollection, o.Now),
		opts:    o,
	}, nil
}

// Options returns the effective options of the guard.
func (g *Guard) Options() Options {
	return g.opts
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// Create inserts rec as a new live record with version 1. No history is written.
// A blank ID is replaced by a new UUIDv7. On success rec.ID and rec.Version are set.
// An existing record with the same id is reported as ErrPersistence, an id that
// already has history (e.g. a deleted record) as ErrInvariantViolation.
func (g *Guard) Create(ctx context.Context, rec *LiveRecord) (err error) {
	const op = "create"
	start := time.Now()
	defer func() { g.finish(op, start, err) }()

	if rec == nil {
		return newError(ErrInvalidRecord, op, "", 0, nil)
	}
	if err := validatePayload(rec.Payload); err != nil {
		return newError(ErrInvalidRecord, op, rec.ID, 0, err)
	}

	id := rec.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return newError(ErrPersistence, op, "", 0, err)
		}
		id = u.String()
	} else if err := validateID(id); err != nil {
		return newError(ErrInvalidRecord, op, id, 0, err)
	} else if err := g.checkUnused(ctx, op, id); err != nil {
		return err
	}

	created := LiveRecord{ID: id, Payload: rec.Payload}
	if err := g.store.Insert(ctx, g.opts.Collection, created.document(1)); err != nil {
		return newError(ErrPersistence, op, id, 0, err)
	}

	rec.ID = id
	rec.Version = 1
	return nil
}

// Update replaces the payload of the live record rec.ID if its persisted version
// equals rec.Version. The persisted pre-image is appended to the history at
// (rec.ID, rec.Version) before the live record is written. On success
// rec.Version is advanced by one, on failure rec is left untouched.
func (g *Guard) Update(ctx context.Context, rec *LiveRecord, changedBy string) (err error) {
	const op = "update"
	start := time.Now()
	defer func() { g.finish(op, start, err) }()

	if err := g.validateMutation(op, rec); err != nil {
		return err
	}
	if err := validatePayload(rec.Payload); err != nil {
		return newError(ErrInvalidRecord, op, rec.ID, rec.Version, err)
	}

	release, err := g.acquire(ctx, op, rec.ID)
	if err != nil {
		return err
	}
	defer release()

	persisted, err := g.loadAndCompare(ctx, op, rec)
	if err != nil {
		return err
	}

	if _, err := g.history.Write(ctx, persisted, persisted.Version, changedBy, false, nil); err != nil {
		return relabel(err, op)
	}

	// the history record is committed, the live write must not be cancelled anymore
	wctx := context.WithoutCancel(ctx)
	next := persisted.Version + 1
	if err := g.store.ReplaceIfVersion(wctx, g.opts.Collection, rec.ID, persisted.Version, rec.document(next)); err != nil {
		return g.liveWriteError(op, rec.ID, persisted.Version, err)
	}

	rec.Version = next
	return nil
}

// Delete removes the live record rec.ID if its persisted version equals rec.Version.
// Before the removal two history records are appended: the persisted pre-image at
// (rec.ID, rec.Version) and a tombstone at (rec.ID, rec.Version+1). The tombstone
// carries the tenant field of the pre-image if it is set. On success rec.Version is
// advanced by one.
func (g *Guard) Delete(ctx context.Context, rec *LiveRecord, changedBy string) (err error) {
	const op = "delete"
	start := time.Now()
	defer func() { g.finish(op, start, err) }()

	if err := g.validateMutation(op, rec); err != nil {
		return err
	}

	release, err := g.acquire(ctx, op, rec.ID)
	if err != nil {
		return err
	}
	defer release()

	persisted, err := g.loadAndCompare(ctx, op, rec)
	if err != nil {
		return err
	}

	if _, err := g.history.Write(ctx, persisted, persisted.Version, changedBy, false, nil); err != nil {
		return relabel(err, op)
	}

	wctx := context.WithoutCancel(ctx)
	next := persisted.Version + 1

	var extra map[string]any
	if tenant := persisted.Payload[g.opts.TenantField]; tenant != nil && tenant != "" {
		extra = map[string]any{g.opts.TenantField: tenant}
	}
	if _, err := g.history.Write(wctx, persisted, next, changedBy, true, extra); err != nil {
		return relabel(err, op)
	}

	if err := g.store.RemoveIfVersion(wctx, g.opts.Collection, rec.ID, persisted.Version); err != nil {
		return g.liveWriteError(op, rec.ID, persisted.Version, err)
	}

	rec.Version = next
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the persisted live record.
func (g *Guard) Get(ctx context.Context, id string) (LiveRecord, error) {
	if err := validateID(id); err != nil {
		return LiveRecord{}, newError(ErrInvalidRecord, "get", id, 0, err)
	}
	return g.load(ctx, "get", id)
}

// History returns all history records of id ordered by their composite version.
// For a deleted record the last entry is the tombstone.
func (g *Guard) History(ctx context.Context, id string) ([]HistoryRecord, error) {
	if err := validateID(id); err != nil {
		return nil, newError(ErrInvalidRecord, "history", id, 0, err)
	}
	return g.history.Read(ctx, id)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func (g *Guard) validateMutation(op string, rec *LiveRecord) error {
	if rec == nil {
		return newError(ErrInvalidRecord, op, "", 0, nil)
	}
	if err := validateID(rec.ID); err != nil {
		return newError(ErrInvalidRecord, op, rec.ID, rec.Version, err)
	}
	return nil
}

// acquire takes the write lease of id. A lease held by another writer is a
// version conflict, the caller is expected to reload and retry.
func (g *Guard) acquire(ctx context.Context, op, id string) (release func(), err error) {
	key := g.opts.Collection + "/" + id
	ok, owner, err := g.leases.Acquire(ctx, key, g.opts.LeaseTTL)
	if err != nil {
		return nil, newError(ErrPersistence, op, id, 0, fmt.Errorf("acquire write lease: %w", err))
	}
	if !ok {
		return nil, newError(ErrVersionConflict, op, id, 0, fmt.Errorf("record is being modified concurrently"))
	}
	return func() {
		released, err := g.leases.Release(context.WithoutCancel(ctx), key, owner)
		if err != nil || !released {
			log.Warningf("could not release write lease %s (released=%t): %v", key, released, err)
		}
	}, nil
}

func (g *Guard) load(ctx context.Context, op, id string) (LiveRecord, error) {
	doc, err := g.store.Get(ctx, g.opts.Collection, id)
	if docstore.IsNotFound(err) {
		return LiveRecord{}, newError(ErrNotFound, op, id, 0, err)
	}
	if err != nil {
		return LiveRecord{}, newError(ErrPersistence, op, id, 0, err)
	}
	rec, err := LiveRecordFromDocument(doc)
	if err != nil {
		return LiveRecord{}, newError(ErrPersistence, op, id, 0, err)
	}
	return rec, nil
}

// checkUnused fails if id already has history records. History ids are never
// reused, a tombstone stays the last record of its id.
func (g *Guard) checkUnused(ctx context.Context, op, id string) error {
	docs, err := g.store.Scan(ctx, g.history.Collection(), docstore.HistoryPrefix(id))
	if err != nil {
		return newError(ErrPersistence, op, id, 0, err)
	}
	if len(docs) > 0 {
		return newError(ErrInvariantViolation, op, id, 0,
			fmt.Errorf("id has %d history records and cannot be created again", len(docs)))
	}
	return nil
}

func (g *Guard) loadAndCompare(ctx context.Context, op string, rec *LiveRecord) (LiveRecord, error) {
	persisted, err := g.load(ctx, op, rec.ID)
	if err != nil {
		return LiveRecord{}, err
	}
	// versions start at 1, the guarded live write could never match a missing one
	if persisted.Version < 1 {
		return LiveRecord{}, newError(ErrPersistence, op, rec.ID, persisted.Version,
			fmt.Errorf("persisted record has no valid %s", FieldVersion))
	}
	if persisted.Version != rec.Version {
		return LiveRecord{}, newError(ErrVersionConflict, op, rec.ID, persisted.Version,
			fmt.Errorf("caller has version %d", rec.Version))
	}
	return persisted, nil
}

// liveWriteError maps a failed guarded live write. The history record is
// already written at this point and stays as an orphan.
func (g *Guard) liveWriteError(op, id string, version int64, err error) error {
	log.Errorf("%s %q: live write failed after history record (%s, %d) was written: %v",
		op, id, id, version, err)
	switch {
	case docstore.IsPreconditionFailed(err):
		return newError(ErrVersionConflict, op, id, version, err)
	case docstore.IsNotFound(err):
		return newError(ErrNotFound, op, id, version, err)
	default:
		return newError(ErrPersistence, op, id, version, err)
	}
}

// relabel sets the operation of an error produced by the history writer.
func relabel(err error, op string) error {
	if e, ok := err.(*Error); ok {
		e.Op = op + "/" + e.Op
	}
	return err
}

func (g *Guard) finish(op string, start time.Time, err error) {
	observeMutation(g.opts.Collection, op, start, err)
	if err != nil && g.opts.LogErrors {
		log.Errorf("%s: %v", g.opts.Collection, err)
	}
}
