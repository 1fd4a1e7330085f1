package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDocStoreTests runs the conformance test suite for an IDocStore implementation.
// Every sub test gets a fresh store from the factory.
func RunDocStoreTests(t *testing.T, name string, factory docstore.StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Get", func(t *testing.T) {
			testInsertGet(t, newStore(t, factory))
		})

		t.Run("InsertDuplicate", func(t *testing.T) {
			testInsertDuplicate(t, newStore(t, factory))
		})

		t.Run("InsertCompositeKey", func(t *testing.T) {
			testInsertCompositeKey(t, newStore(t, factory))
		})

		t.Run("Replace", func(t *testing.T) {
			testReplace(t, newStore(t, factory))
		})

		t.Run("ReplaceIfVersion", func(t *testing.T) {
			testReplaceIfVersion(t, newStore(t, factory))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, newStore(t, factory))
		})

		t.Run("RemoveIfVersion", func(t *testing.T) {
			testRemoveIfVersion(t, newStore(t, factory))
		})

		t.Run("ScanOrder", func(t *testing.T) {
			testScanOrder(t, newStore(t, factory))
		})

		t.Run("CollectionsAreIsolated", func(t *testing.T) {
			testCollectionsIsolated(t, newStore(t, factory))
		})

		t.Run("ValueTypes", func(t *testing.T) {
			testValueTypes(t, newStore(t, factory))
		})

		t.Run("ConcurrentInsert", func(t *testing.T) {
			testConcurrentInsert(t, newStore(t, factory))
		})

		t.Run("ConcurrentReplaceIfVersion", func(t *testing.T) {
			testConcurrentReplaceIfVersion(t, newStore(t, factory))
		})

		t.Run("CancelledContext", func(t *testing.T) {
			testCancelledContext(t, newStore(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newStore(t *testing.T, factory docstore.StoreFactory) docstore.IDocStore {
	t.Helper()
	store, err := factory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func doc(id string, version int64, fields ...any) docstore.Document {
	d := docstore.Document{docstore.IDField: id, docstore.VersionField: version}
	for i := 0; i+1 < len(fields); i += 2 {
		d[fields[i].(string)] = fields[i+1]
	}
	return d
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1, "title", "hello")))

	got, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got[docstore.IDField])
	assert.Equal(t, int64(1), got[docstore.VersionField])
	assert.Equal(t, "hello", got["title"])

	// returned documents are copies
	got["title"] = "changed"
	again, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again["title"])

	_, err = store.Get(ctx, "pages", "missing")
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	_, err = store.Get(ctx, "unknown-collection", "p1")
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	err = store.Insert(ctx, "pages", docstore.Document{"title": "no id"})
	assert.Equal(t, docstore.RetCInvalidOperation, docstore.CodeOf(err))
}

func testInsertDuplicate(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1, "title", "first")))
	err := store.Insert(ctx, "pages", doc("p1", 7, "title", "second"))
	assert.True(t, docstore.IsDuplicateKey(err), "expected duplicate key, got %v", err)

	got, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", got["title"], "duplicate insert must not overwrite")
	assert.Equal(t, int64(1), got[docstore.VersionField])
}

func testInsertCompositeKey(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	h := docstore.Document{
		docstore.IDField:      map[string]any{"originalId": "p1", "version": 2},
		docstore.VersionField: 2,
		"title":               "v2",
	}
	require.NoError(t, store.Insert(ctx, "versions", h))

	got, err := store.Get(ctx, "versions", docstore.CompositeKey("p1", 2))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"originalId": "p1", "version": int64(2)}, got[docstore.IDField])

	err = store.Insert(ctx, "versions", h.Clone())
	assert.True(t, docstore.IsDuplicateKey(err), "expected duplicate key, got %v", err)
}

func testReplace(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	err := store.Replace(ctx, "pages", "p1", doc("p1", 1))
	assert.True(t, docstore.IsNotFound(err), "replace of a missing document must fail, got %v", err)

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1, "title", "a")))
	require.NoError(t, store.Replace(ctx, "pages", "p1", doc("p1", 5, "title", "b")))

	got, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "b", got["title"])
	assert.Equal(t, int64(5), got[docstore.VersionField])
}

func testReplaceIfVersion(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	err := store.ReplaceIfVersion(ctx, "pages", "p1", 1, doc("p1", 2))
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1, "title", "a")))

	err = store.ReplaceIfVersion(ctx, "pages", "p1", 2, doc("p1", 3, "title", "wrong"))
	assert.True(t, docstore.IsPreconditionFailed(err), "expected precondition failed, got %v", err)

	got, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "a", got["title"], "failed guard must not write")

	require.NoError(t, store.ReplaceIfVersion(ctx, "pages", "p1", 1, doc("p1", 2, "title", "b")))
	got, err = store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, "b", got["title"])
	assert.Equal(t, int64(2), got[docstore.VersionField])

	// a document without a version never matches
	require.NoError(t, store.Insert(ctx, "pages", docstore.Document{docstore.IDField: "p2"}))
	err = store.ReplaceIfVersion(ctx, "pages", "p2", 0, doc("p2", 1))
	assert.True(t, docstore.IsPreconditionFailed(err), "expected precondition failed, got %v", err)
}

func testRemove(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	err := store.Remove(ctx, "pages", "p1")
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1)))
	require.NoError(t, store.Remove(ctx, "pages", "p1"))

	_, err = store.Get(ctx, "pages", "p1")
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	// the key can be reused after removal
	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1)))
}

func testRemoveIfVersion(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	err := store.RemoveIfVersion(ctx, "pages", "p1", 1)
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 4)))

	err = store.RemoveIfVersion(ctx, "pages", "p1", 3)
	assert.True(t, docstore.IsPreconditionFailed(err), "expected precondition failed, got %v", err)
	_, err = store.Get(ctx, "pages", "p1")
	require.NoError(t, err, "failed guard must not remove")

	require.NoError(t, store.RemoveIfVersion(ctx, "pages", "p1", 4))
	_, err = store.Get(ctx, "pages", "p1")
	assert.True(t, docstore.IsNotFound(err), "expected not found, got %v", err)
}

func testScanOrder(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	// insert out of order, versions 2 and 10 must sort numerically
	for _, v := range []int64{10, 2, 1, 3} {
		h := docstore.Document{
			docstore.IDField:      map[string]any{"originalId": "p1", "version": v},
			docstore.VersionField: v,
		}
		require.NoError(t, store.Insert(ctx, "versions", h))
	}
	require.NoError(t, store.Insert(ctx, "versions", docstore.Document{
		docstore.IDField:      map[string]any{"originalId": "p10", "version": 1},
		docstore.VersionField: 1,
	}))

	docs, err := store.Scan(ctx, "versions", docstore.HistoryPrefix("p1"))
	require.NoError(t, err)
	require.Len(t, docs, 4)
	var versions []int64
	for _, d := range docs {
		v, ok := d.Version()
		require.True(t, ok)
		versions = append(versions, v)
	}
	assert.Equal(t, []int64{1, 2, 3, 10}, versions)

	all, err := store.Scan(ctx, "versions", "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := store.Scan(ctx, "empty", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCollectionsIsolated(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "a", doc("x", 1, "from", "a")))
	require.NoError(t, store.Insert(ctx, "b", doc("x", 1, "from", "b")))

	got, err := store.Get(ctx, "a", "x")
	require.NoError(t, err)
	assert.Equal(t, "a", got["from"])

	require.NoError(t, store.Remove(ctx, "b", "x"))
	_, err = store.Get(ctx, "a", "x")
	assert.NoError(t, err)
}

func testValueTypes(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	in := docstore.Document{
		docstore.IDField:      "p1",
		docstore.VersionField: 1,
		"int":                 42,
		"float":               1.5,
		"bool":                true,
		"nil":                 nil,
		"string":              "s",
		"list":                []any{1, "two", 3.5},
		"nested":              map[string]any{"a": map[string]any{"b": 2}},
	}
	require.NoError(t, store.Insert(ctx, "types", in))

	got, err := store.Get(ctx, "types", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got["int"])
	assert.Equal(t, 1.5, got["float"])
	assert.Equal(t, true, got["bool"])
	assert.Nil(t, got["nil"])
	assert.Contains(t, got, "nil")
	assert.Equal(t, "s", got["string"])
	assert.Equal(t, []any{int64(1), "two", 3.5}, got["list"])
	assert.Equal(t, map[string]any{"a": map[string]any{"b": int64(2)}}, got["nested"])
}

func testConcurrentInsert(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Insert(ctx, "leases", doc("lock", int64(i), "owner", fmt.Sprint(i)))
			if err == nil {
				successes.Add(1)
			} else if !docstore.IsDuplicateKey(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one insert must win")
}

func testConcurrentReplaceIfVersion(t *testing.T, store docstore.IDocStore) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, "pages", doc("p1", 1)))

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.ReplaceIfVersion(ctx, "pages", "p1", 1, doc("p1", 2, "writer", int64(i)))
			if err == nil {
				successes.Add(1)
			} else if !docstore.IsPreconditionFailed(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one guarded write must win")
	got, err := store.Get(ctx, "pages", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[docstore.VersionField])
}

func testCancelledContext(t *testing.T, store docstore.IDocStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Insert(ctx, "pages", doc("p1", 1))
	assert.Error(t, err)

	_, err = store.Get(context.Background(), "pages", "p1")
	assert.True(t, docstore.IsNotFound(err), "cancelled insert must not write, got %v", err)
}
