package versioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/memstore"
	"github.com/ValentinKolb/dVer/lib/lease"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// faultStore wraps a store and injects errors into selected operations.
type faultStore struct {
	docstore.IDocStore
	insertHook  func(ctx context.Context, collection string, doc docstore.Document) error
	afterInsert func(collection string)
	replaceHook func(collection, key string) error
	removeHook  func(collection, key string) error
}

func (f *faultStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	if f.insertHook != nil {
		if err := f.insertHook(ctx, collection, doc); err != nil {
			return err
		}
	}
	if err := f.IDocStore.Insert(ctx, collection, doc); err != nil {
		return err
	}
	if f.afterInsert != nil {
		f.afterInsert(collection)
	}
	return nil
}

func (f *faultStore) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	if f.replaceHook != nil {
		if err := f.replaceHook(collection, key); err != nil {
			return err
		}
	}
	return f.IDocStore.ReplaceIfVersion(ctx, collection, key, expected, doc)
}

func (f *faultStore) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	if f.removeHook != nil {
		if err := f.removeHook(collection, key); err != nil {
			return err
		}
	}
	return f.IDocStore.RemoveIfVersion(ctx, collection, key, expected)
}

func newGuard(t *testing.T, store docstore.IDocStore) *Guard {
	t.Helper()
	g, err := NewGuard(store, DefaultOptions("pages"))
	require.NoError(t, err)
	return g
}

func historyOf(t *testing.T, g *Guard, id string) []HistoryRecord {
	t.Helper()
	h, err := g.History(context.Background(), id)
	require.NoError(t, err)
	return h
}

func rawLive(t *testing.T, store docstore.IDocStore, id string) docstore.Document {
	t.Helper()
	doc, err := store.Get(context.Background(), "pages", id)
	require.NoError(t, err)
	return doc
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	g := newGuard(t, store)

	r := &LiveRecord{ID: "r", Payload: map[string]any{"title": "first", "companyId": "c1"}}
	require.NoError(t, g.Create(ctx, r))
	assert.Equal(t, int64(1), r.Version)
	assert.Empty(t, historyOf(t, g, "r"), "create must not write history")

	r.Payload = map[string]any{"title": "second", "companyId": "c1"}
	require.NoError(t, g.Update(ctx, r, ""))
	h := historyOf(t, g, "r")
	require.Len(t, h, 1)
	assert.Equal(t, int64(1), h[0].Version)
	assert.Equal(t, "first", h[0].Payload["title"])
	assert.Equal(t, int64(2), r.Version)

	r.Payload = map[string]any{"title": "third", "companyId": "c1"}
	require.NoError(t, g.Update(ctx, r, "U"))
	h = historyOf(t, g, "r")
	require.Len(t, h, 2)
	assert.Equal(t, "U", h[1].ChangedBy)
	assert.Equal(t, "second", h[1].Payload["title"])
	assert.Equal(t, int64(3), r.Version)

	require.NoError(t, g.Delete(ctx, r, "U"))
	h = historyOf(t, g, "r")
	require.Len(t, h, 4)

	assert.False(t, h[2].IsTombstone())
	assert.Equal(t, int64(3), h[2].Version)
	assert.Equal(t, "third", h[2].Payload["title"])
	assert.Equal(t, "U", h[2].ChangedBy)

	assert.True(t, h[3].IsTombstone())
	assert.Equal(t, TombstoneVersion, h[3].Version)
	assert.Equal(t, HistoryID{OriginalID: "r", Version: 4}, h[3].ID)
	assert.Equal(t, "U", h[3].ChangedBy)
	assert.Equal(t, map[string]any{"companyId": "c1"}, h[3].Payload)
	assert.Equal(t, int64(4), r.Version)

	_, err := g.Get(ctx, "r")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	g := newGuard(t, store)

	t.Run("AssignsID", func(t *testing.T) {
		r := &LiveRecord{Payload: map[string]any{"a": 1}}
		require.NoError(t, g.Create(ctx, r))
		u, err := uuid.Parse(r.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), u.Version())
		assert.Equal(t, int64(1), r.Version)

		doc := rawLive(t, store, r.ID)
		assert.Equal(t, docstore.Document{"_id": r.ID, "_version": int64(1), "a": int64(1)}, doc)
	})

	t.Run("IgnoresCallerVersion", func(t *testing.T) {
		r := &LiveRecord{ID: "fixed", Version: 42}
		require.NoError(t, g.Create(ctx, r))
		assert.Equal(t, int64(1), r.Version)
		assert.Equal(t, int64(1), rawLive(t, store, "fixed")["_version"])
	})

	t.Run("DuplicateIsPersistenceError", func(t *testing.T) {
		r := &LiveRecord{ID: "fixed"}
		err := g.Create(ctx, r)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.True(t, docstore.IsDuplicateKey(err))
		assert.Equal(t, int64(0), r.Version)
	})

	t.Run("RejectsReservedFields", func(t *testing.T) {
		for _, f := range []string{FieldID, FieldVersion, FieldChangedBy, FieldChangedAt} {
			err := g.Create(ctx, &LiveRecord{Payload: map[string]any{f: 1}})
			assert.ErrorIs(t, err, ErrReservedField, f)
			assert.ErrorIs(t, err, ErrInvalidRecord, f)
		}
	})

	t.Run("RejectsBadID", func(t *testing.T) {
		err := g.Create(ctx, &LiveRecord{ID: "a#1"})
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.ErrorIs(t, g.Create(ctx, nil), ErrInvalidRecord)
	})

	t.Run("RejectsDeletedID", func(t *testing.T) {
		r := &LiveRecord{ID: "gone", Payload: map[string]any{"title": "a"}}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Delete(ctx, r, "u"))

		again := &LiveRecord{ID: "gone", Payload: map[string]any{"title": "b"}}
		err := g.Create(ctx, again)
		assert.ErrorIs(t, err, ErrInvariantViolation)
		assert.Equal(t, int64(0), again.Version)

		_, err = g.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
		h := historyOf(t, g, "gone")
		require.Len(t, h, 2)
		assert.True(t, h[1].IsTombstone(), "the tombstone stays the last history record")
	})

	t.Run("PrefixOfDeletedID", func(t *testing.T) {
		r := &LiveRecord{ID: "gone2"}
		require.NoError(t, g.Create(ctx, r), "history of other ids does not block")
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		g := newGuard(t, memstore.NewStore())
		r := &LiveRecord{ID: "missing", Version: 1}
		err := g.Update(ctx, r, "u")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(1), r.Version)
		assert.Empty(t, historyOf(t, g, "missing"))
	})

	t.Run("VersionConflictLeavesStoresUnchanged", func(t *testing.T) {
		store := memstore.NewStore()
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p", Payload: map[string]any{"title": "a"}}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Update(ctx, r, ""))

		stale := &LiveRecord{ID: "p", Version: 1, Payload: map[string]any{"title": "stale"}}
		err := g.Update(ctx, stale, "u")
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.Equal(t, int64(1), stale.Version)

		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, int64(2), verr.Version, "error carries the persisted version")

		assert.Len(t, historyOf(t, g, "p"), 1)
		assert.Equal(t, "a", rawLive(t, store, "p")["title"])
	})

	t.Run("ContiguousHistory", func(t *testing.T) {
		g := newGuard(t, memstore.NewStore())
		r := &LiveRecord{ID: "p", Payload: map[string]any{"n": 0}}
		require.NoError(t, g.Create(ctx, r))
		for i := 1; i <= 12; i++ {
			r.Payload = map[string]any{"n": i}
			require.NoError(t, g.Update(ctx, r, ""))
		}
		assert.Equal(t, int64(13), r.Version)

		h := historyOf(t, g, "p")
		require.Len(t, h, 12)
		for i, rec := range h {
			assert.Equal(t, int64(i+1), rec.Version)
			assert.Equal(t, int64(i+1), rec.ID.Version)
			assert.Equal(t, int64(i), rec.Payload["n"], "history holds the pre-image")
		}
	})

	t.Run("ChangedByNeverOnLiveRecord", func(t *testing.T) {
		store := memstore.NewStore()
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Update(ctx, r, "alice"))
		require.NoError(t, g.Update(ctx, r, ""))

		assert.NotContains(t, rawLive(t, store, "p"), FieldChangedBy)

		raw, err := store.Scan(ctx, "versions", docstore.HistoryPrefix("p"))
		require.NoError(t, err)
		require.Len(t, raw, 2)
		assert.Equal(t, "alice", raw[0][FieldChangedBy])
		assert.NotContains(t, raw[1], FieldChangedBy, "empty changedBy is absent, not empty")
	})

	t.Run("ChangedAt", func(t *testing.T) {
		now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		opts := DefaultOptions("pages")
		opts.Now = func() time.Time { return now }
		g, err := NewGuard(memstore.NewStore(), opts)
		require.NoError(t, err)

		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Update(ctx, r, ""))
		h := historyOf(t, g, "p")
		require.Len(t, h, 1)
		assert.True(t, now.Equal(h[0].ChangedAt))
	})

	t.Run("HeldLeaseIsConflict", func(t *testing.T) {
		store := memstore.NewStore()
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))

		lm := lease.NewLeaseManager(store, DefaultLeaseCollection, nil)
		ok, owner, err := lm.Acquire(ctx, "pages/p", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		assert.ErrorIs(t, g.Update(ctx, r, ""), ErrVersionConflict)
		assert.Empty(t, historyOf(t, g, "p"))

		_, err = lm.Release(ctx, "pages/p", owner)
		require.NoError(t, err)
		assert.NoError(t, g.Update(ctx, r, ""))
	})

	t.Run("LeaseIsReleased", func(t *testing.T) {
		store := memstore.NewStore()
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Update(ctx, r, ""))
		assert.ErrorIs(t, g.Update(ctx, &LiveRecord{ID: "p", Version: 1}, ""), ErrVersionConflict)

		leases, err := store.Scan(ctx, DefaultLeaseCollection, "")
		require.NoError(t, err)
		assert.Empty(t, leases)
	})
}

func TestMissingPersistedVersion(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	g := newGuard(t, store)

	// written around the guard, e.g. with a raw store insert
	require.NoError(t, store.Insert(ctx, "pages", docstore.Document{"_id": "y", "title": "raw"}))

	live, err := g.Get(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(0), live.Version)

	for i := 0; i < 2; i++ {
		r := &LiveRecord{ID: "y", Version: 0, Payload: map[string]any{"title": "new"}}
		assert.ErrorIs(t, g.Update(ctx, r, "u"), ErrPersistence)
		assert.ErrorIs(t, g.Delete(ctx, r, "u"), ErrPersistence)
		assert.Equal(t, int64(0), r.Version)
	}

	assert.Empty(t, historyOf(t, g, "y"), "no history is written for a record that cannot be guarded")
	assert.Equal(t, "raw", rawLive(t, store, "y")["title"])
}

func TestConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	g := newGuard(t, store)
	require.NoError(t, g.Create(ctx, &LiveRecord{ID: "p"}))

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &LiveRecord{ID: "p", Version: 1, Payload: map[string]any{"writer": i}}
			errs[i] = g.Update(ctx, r, fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrVersionConflict)
	}
	assert.Equal(t, 1, ok, "exactly one writer must succeed")

	assert.Len(t, historyOf(t, g, "p"), 1)
	live, err := g.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(2), live.Version)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("TombstoneWithoutTenant", func(t *testing.T) {
		g := newGuard(t, memstore.NewStore())
		r := &LiveRecord{ID: "p", Payload: map[string]any{"title": "t"}}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Delete(ctx, r, ""))

		h := historyOf(t, g, "p")
		require.Len(t, h, 2)
		assert.Equal(t, int64(1), h[0].Version)
		assert.True(t, h[1].IsTombstone())
		assert.Empty(t, h[1].Payload)
		assert.Empty(t, h[1].ChangedBy)
	})

	t.Run("CustomTenantField", func(t *testing.T) {
		opts := DefaultOptions("pages")
		opts.TenantField = "tenant"
		g, err := NewGuard(memstore.NewStore(), opts)
		require.NoError(t, err)

		r := &LiveRecord{ID: "p", Payload: map[string]any{"tenant": "t1", "companyId": "c1"}}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Delete(ctx, r, "u"))

		h := historyOf(t, g, "p")
		require.Len(t, h, 2)
		assert.Equal(t, map[string]any{"tenant": "t1"}, h[1].Payload)
	})

	t.Run("VersionConflict", func(t *testing.T) {
		store := memstore.NewStore()
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))
		require.NoError(t, g.Update(ctx, r, ""))

		err := g.Delete(ctx, &LiveRecord{ID: "p", Version: 1}, "u")
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.Len(t, historyOf(t, g, "p"), 1)
		rawLive(t, store, "p")
	})

	t.Run("NotFound", func(t *testing.T) {
		g := newGuard(t, memstore.NewStore())
		assert.ErrorIs(t, g.Delete(ctx, &LiveRecord{ID: "nope", Version: 1}, ""), ErrNotFound)
	})

	t.Run("UnsetTenantIsSkipped", func(t *testing.T) {
		g := newGuard(t, memstore.NewStore())
		for _, id := range []string{"nil", "empty"} {
			tenant := map[string]any{"nil": nil, "empty": ""}[id]
			r := &LiveRecord{ID: id, Payload: map[string]any{"companyId": tenant}}
			require.NoError(t, g.Create(ctx, r))
			require.NoError(t, g.Delete(ctx, r, "u"))

			h := historyOf(t, g, id)
			require.Len(t, h, 2)
			assert.Empty(t, h[1].Payload, id)
		}
	})
}

func TestFailures(t *testing.T) {
	ctx := context.Background()
	boom := docstore.NewError(docstore.RetCInternalError, "disk on fire")

	t.Run("HistoryFailureAbortsUpdate", func(t *testing.T) {
		store := &faultStore{IDocStore: memstore.NewStore()}
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p", Payload: map[string]any{"title": "a"}}
		require.NoError(t, g.Create(ctx, r))

		store.insertHook = func(_ context.Context, collection string, _ docstore.Document) error {
			if collection == "versions" {
				return boom
			}
			return nil
		}
		r.Payload = map[string]any{"title": "b"}
		err := g.Update(ctx, r, "")
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(1), r.Version)
		assert.Equal(t, "a", rawLive(t, store, "p")["title"])
	})

	t.Run("TombstoneFailureAbortsDelete", func(t *testing.T) {
		store := &faultStore{IDocStore: memstore.NewStore()}
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))

		store.insertHook = func(_ context.Context, collection string, doc docstore.Document) error {
			if v, _ := doc.Version(); collection == "versions" && v == TombstoneVersion {
				return boom
			}
			return nil
		}
		assert.ErrorIs(t, g.Delete(ctx, r, ""), ErrPersistence)
		assert.Equal(t, int64(1), r.Version)
		rawLive(t, store, "p")
	})

	t.Run("OrphanIsReportedAsInvariantViolation", func(t *testing.T) {
		store := &faultStore{IDocStore: memstore.NewStore()}
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))

		store.replaceHook = func(string, string) error { return boom }
		assert.ErrorIs(t, g.Update(ctx, r, ""), ErrPersistence)
		assert.Equal(t, int64(1), r.Version)

		store.replaceHook = nil
		assert.ErrorIs(t, g.Update(ctx, r, ""), ErrInvariantViolation)
	})

	t.Run("LostGuardedWriteIsConflict", func(t *testing.T) {
		store := &faultStore{IDocStore: memstore.NewStore()}
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p"}
		require.NoError(t, g.Create(ctx, r))

		store.removeHook = func(string, string) error {
			return docstore.NewError(docstore.RetCPreconditionFailed, "moved on")
		}
		assert.ErrorIs(t, g.Delete(ctx, r, ""), ErrVersionConflict)
	})

	t.Run("CancellationAfterHistoryWrite", func(t *testing.T) {
		store := &faultStore{IDocStore: memstore.NewStore()}
		g := newGuard(t, store)
		r := &LiveRecord{ID: "p", Payload: map[string]any{"title": "a"}}
		require.NoError(t, g.Create(ctx, r))

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		store.afterInsert = func(collection string) {
			if collection == "versions" {
				cancel()
			}
		}

		r.Payload = map[string]any{"title": "b"}
		require.NoError(t, g.Update(cctx, r, ""))
		assert.Equal(t, "b", rawLive(t, store, "p")["title"])
		assert.Equal(t, int64(2), r.Version)
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	g := newGuard(t, memstore.NewStore())

	r := &LiveRecord{ID: "p", Payload: map[string]any{"x": 1}}
	require.NoError(t, g.Apply(ctx, CreateIntent{Record: r}))
	require.NoError(t, g.Apply(ctx, UpdateIntent{Record: r, ChangedBy: "u"}))
	require.NoError(t, g.Apply(ctx, &DeleteIntent{Record: r, ChangedBy: "u"}))

	h := historyOf(t, g, "p")
	require.Len(t, h, 3)
	assert.True(t, h[2].IsTombstone())
	assert.ErrorIs(t, g.Apply(ctx, nil), ErrInvalidRecord)
}

func TestNewGuard(t *testing.T) {
	store := memstore.NewStore()

	_, err := NewGuard(nil, DefaultOptions("pages"))
	assert.Error(t, err)
	_, err = NewGuard(store, nil)
	assert.Error(t, err)
	_, err = NewGuard(store, &Options{})
	assert.Error(t, err)
	_, err = NewGuard(store, &Options{Collection: "versions"})
	assert.Error(t, err, "live and history collection must differ")
	_, err = NewGuard(store, &Options{Collection: "a/b"})
	assert.Error(t, err)
	_, err = NewGuard(store, &Options{Collection: "pages", TenantField: "_version"})
	assert.Error(t, err)

	g, err := NewGuard(store, &Options{Collection: "pages"})
	require.NoError(t, err)
	o := g.Options()
	assert.Equal(t, DefaultHistoryCollection, o.HistoryCollection)
	assert.Equal(t, DefaultLeaseCollection, o.LeaseCollection)
	assert.Equal(t, DefaultLeaseTTL, o.LeaseTTL)
	assert.Equal(t, DefaultTenantField, o.TenantField)
}

func TestErrorKinds(t *testing.T) {
	err := newError(ErrVersionConflict, "update", "p", 3, errors.New("inner"))
	assert.Equal(t, "VersionConflict", KindOf(err))
	assert.Equal(t, `update "p" (version 3): version conflict: inner`, err.Error())
	assert.Equal(t, ErrVersionConflict, KindByName("VersionConflict"))
	assert.Equal(t, ErrPersistence, KindByName("???"))
	assert.Equal(t, "ReservedField", KindOf(fmt.Errorf("%w: x", ErrReservedField)))
	assert.Equal(t, "", KindOf(errors.New("plain")))
	assert.Equal(t, "", KindOf(nil))
}
