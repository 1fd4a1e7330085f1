package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dVer/lib/docstore"
	dstesting "github.com/ValentinKolb/dVer/lib/docstore/testing"
	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/ValentinKolb/dVer/rpc/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

const testStoreId = 7

// loopbackTransport hands requests directly to an in-process server
type loopbackTransport struct {
	srv *server.RPCServer
}

func (l *loopbackTransport) Connect(common.ClientConfig) error { return nil }

func (l *loopbackTransport) Send(ctx context.Context, storeId uint64, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.srv.Handle(ctx, storeId, req), nil
}

func (l *loopbackTransport) Close() error { return nil }

func newTestServer(t testing.TB) *server.RPCServer {
	t.Helper()
	srv := server.NewRPCServer(common.ServerConfig{
		Stores:        []common.ServerStore{{StoreID: testStoreId, Type: common.StoreTypeMemory}},
		TimeoutSecond: 5,
		LogLevel:      "error",
	}, nil, serializer.NewJSONSerializer())
	require.NoError(t, srv.Init())
	t.Cleanup(srv.Close)
	return srv
}

func newDocStore(t testing.TB, srv *server.RPCServer, s serializer.IRPCSerializer) docstore.IDocStore {
	t.Helper()
	store, err := NewRPCDocStore(testStoreId, common.ClientConfig{}, &loopbackTransport{srv: srv}, s)
	require.NoError(t, err)
	return store
}

func newCollection(t testing.TB, srv *server.RPCServer, collection string) *VersionedCollection {
	t.Helper()
	c, err := NewRPCVersionedCollection(testStoreId, collection, common.ClientConfig{}, &loopbackTransport{srv: srv}, serializer.NewGOBSerializer())
	require.NoError(t, err)
	return c
}

// --------------------------------------------------------------------------
// Document store
// --------------------------------------------------------------------------

func TestRPCDocStore(t *testing.T) {
	for name, s := range map[string]serializer.IRPCSerializer{
		"JSON": serializer.NewJSONSerializer(),
		"GOB":  serializer.NewGOBSerializer(),
	} {
		dstesting.RunDocStoreTests(t, "RPCDocStore/"+name, func() (docstore.IDocStore, error) {
			return newDocStore(t, newTestServer(t), s), nil
		})
	}
}

func TestUnknownStore(t *testing.T) {
	srv := newTestServer(t)
	store, err := NewRPCDocStore(99, common.ClientConfig{}, &loopbackTransport{srv: srv}, serializer.NewJSONSerializer())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "pages", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store 99 not found")
}

func TestGuardOverRPCDocStore(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	// the guard runs in the client, only raw store operations go over the wire
	guard, err := versioning.NewGuard(newDocStore(t, srv, serializer.NewJSONSerializer()), versioning.DefaultOptions("pages"))
	require.NoError(t, err)

	rec := &versioning.LiveRecord{ID: "p1", Payload: map[string]any{"title": "a"}}
	require.NoError(t, guard.Create(ctx, rec))
	rec.Payload = map[string]any{"title": "b"}
	require.NoError(t, guard.Update(ctx, rec, "alice"))

	stale := &versioning.LiveRecord{ID: "p1", Version: 1, Payload: map[string]any{"title": "c"}}
	assert.ErrorIs(t, guard.Update(ctx, stale, "bob"), versioning.ErrVersionConflict)

	history, err := guard.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].Payload["title"])
	assert.Equal(t, "alice", history[0].ChangedBy)
}

// --------------------------------------------------------------------------
// Versioned collection
// --------------------------------------------------------------------------

func TestVersionedCollectionScenario(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, newTestServer(t), "pages")

	rec := &versioning.LiveRecord{Payload: map[string]any{"title": "v1", "companyId": "acme"}}
	require.NoError(t, c.Apply(ctx, versioning.CreateIntent{Record: rec}))
	require.NotEmpty(t, rec.ID, "the server assigns an id")
	assert.Equal(t, int64(1), rec.Version)

	rec.Payload = map[string]any{"title": "v2", "companyId": "acme"}
	require.NoError(t, c.Apply(ctx, versioning.UpdateIntent{Record: rec, ChangedBy: "U"}))
	rec.Payload = map[string]any{"title": "v3", "companyId": "acme"}
	require.NoError(t, c.Apply(ctx, versioning.UpdateIntent{Record: rec, ChangedBy: "U"}))
	assert.Equal(t, int64(3), rec.Version)

	live, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), live.Version)
	assert.Equal(t, "v3", live.Payload["title"])

	require.NoError(t, c.Apply(ctx, versioning.DeleteIntent{Record: rec, ChangedBy: "U"}))

	_, err = c.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, versioning.ErrNotFound)

	history, err := c.History(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, h := range history[:3] {
		assert.Equal(t, int64(i+1), h.ID.Version)
		assert.Equal(t, int64(i+1), h.Version)
		assert.False(t, h.IsTombstone())
	}
	assert.Equal(t, "v1", history[0].Payload["title"])
	assert.Equal(t, "U", history[0].ChangedBy)

	tomb := history[3]
	assert.True(t, tomb.IsTombstone())
	assert.Equal(t, int64(4), tomb.ID.Version)
	assert.Equal(t, "U", tomb.ChangedBy)
	assert.Equal(t, map[string]any{"companyId": "acme"}, tomb.Payload)
}

func TestVersionedCollectionErrors(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, newTestServer(t), "pages")

	rec := &versioning.LiveRecord{ID: "p1", Payload: map[string]any{"title": "a"}}
	require.NoError(t, c.Create(ctx, rec))

	t.Run("VersionConflict", func(t *testing.T) {
		stale := &versioning.LiveRecord{ID: "p1", Version: 5}
		err := c.Update(ctx, stale, "u")

		var verr *versioning.Error
		require.ErrorAs(t, err, &verr)
		assert.ErrorIs(t, err, versioning.ErrVersionConflict)
		assert.Equal(t, "update", verr.Op)
		assert.Equal(t, "p1", verr.ID)
		assert.Equal(t, int64(1), verr.Version, "the persisted version is reported")
		assert.Equal(t, int64(5), stale.Version, "a failed update leaves the record untouched")
	})

	t.Run("NotFound", func(t *testing.T) {
		err := c.Delete(ctx, &versioning.LiveRecord{ID: "missing", Version: 1}, "u")
		assert.ErrorIs(t, err, versioning.ErrNotFound)
	})

	t.Run("ReservedField", func(t *testing.T) {
		err := c.Create(ctx, &versioning.LiveRecord{Payload: map[string]any{"_version": 3}})
		assert.ErrorIs(t, err, versioning.ErrReservedField)
		assert.ErrorIs(t, err, versioning.ErrInvalidRecord)
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		err := c.Create(ctx, &versioning.LiveRecord{ID: "p1"})
		assert.ErrorIs(t, err, versioning.ErrPersistence)
		assert.True(t, docstore.IsDuplicateKey(err), "the store cause survives the wire")
	})

	t.Run("InvalidCollection", func(t *testing.T) {
		bad := newCollection(t, newTestServer(t), "a/b")
		err := bad.Create(ctx, &versioning.LiveRecord{})
		require.Error(t, err)
		assert.ErrorIs(t, err, versioning.ErrPersistence, "setup errors of the server are no record errors")
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Get(cctx, "p1")
		assert.ErrorIs(t, err, versioning.ErrPersistence)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestVersionedCollectionConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	c := newCollection(t, srv, "pages")

	rec := &versioning.LiveRecord{ID: "p1", Payload: map[string]any{"n": 0}}
	require.NoError(t, c.Create(ctx, rec))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &versioning.LiveRecord{ID: "p1", Version: 1, Payload: map[string]any{"n": i}}
			errs[i] = c.Update(ctx, r, "w")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, versioning.ErrVersionConflict)
	}
	assert.Equal(t, 1, ok)

	history, err := c.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCollectionsUseSeparateHistories(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	pages := newCollection(t, srv, "pages")
	posts := newCollection(t, srv, "posts")

	for _, c := range []*VersionedCollection{pages, posts} {
		rec := &versioning.LiveRecord{ID: "same-id", Payload: map[string]any{"c": c.Collection()}}
		require.NoError(t, c.Create(ctx, rec))
		require.NoError(t, c.Update(ctx, rec, "u"))
	}

	raw := newDocStore(t, srv, serializer.NewJSONSerializer())
	docs, err := raw.Scan(ctx, "pages.versions", docstore.HistoryPrefix("same-id"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "pages", docs[0]["c"])
}
