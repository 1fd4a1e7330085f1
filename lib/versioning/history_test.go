package versioning

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryWriter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memstore.NewStore()
	w := NewHistoryWriter(store, "versions", func() time.Time { return now })

	pre := LiveRecord{ID: "p", Version: 2, Payload: map[string]any{"title": "t", "companyId": "c"}}

	t.Run("Snapshot", func(t *testing.T) {
		h, err := w.Write(ctx, pre, 2, "u", false, nil)
		require.NoError(t, err)
		assert.Equal(t, HistoryID{OriginalID: "p", Version: 2}, h.ID)
		assert.Equal(t, int64(2), h.Version)
		assert.False(t, h.IsTombstone())

		raw, err := store.Get(ctx, "versions", docstore.CompositeKey("p", 2))
		require.NoError(t, err)
		assert.Equal(t, docstore.Document{
			"_id":        map[string]any{"originalId": "p", "version": int64(2)},
			"_version":   int64(2),
			"_changedBy": "u",
			"_changedAt": "2024-06-01T00:00:00Z",
			"title":      "t",
			"companyId":  "c",
		}, raw)
	})

	t.Run("Tombstone", func(t *testing.T) {
		h, err := w.Write(ctx, pre, 3, "", true, map[string]any{"companyId": "c"})
		require.NoError(t, err)
		assert.True(t, h.IsTombstone())

		raw, err := store.Get(ctx, "versions", docstore.CompositeKey("p", 3))
		require.NoError(t, err)
		assert.Equal(t, docstore.Document{
			"_id":        map[string]any{"originalId": "p", "version": int64(3)},
			"_version":   int64(-1),
			"_changedAt": "2024-06-01T00:00:00Z",
			"companyId":  "c",
		}, raw, "tombstones carry no payload")
	})

	t.Run("DuplicateIsInvariantViolation", func(t *testing.T) {
		_, err := w.Write(ctx, pre, 2, "u", false, nil)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("Read", func(t *testing.T) {
		records, err := w.Read(ctx, "p")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "u", records[0].ChangedBy)
		assert.True(t, now.Equal(records[0].ChangedAt))
		assert.True(t, records[1].IsTombstone())

		none, err := w.Read(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestLiveFromDocument(t *testing.T) {
	rec, err := LiveRecordFromDocument(docstore.Document{"_id": "p", "title": "t"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Version, "missing version counts as 0")
	assert.Equal(t, map[string]any{"title": "t"}, rec.Payload)

	_, err = LiveRecordFromDocument(docstore.Document{"_id": "p", "_version": "x"})
	assert.Error(t, err)
	_, err = LiveRecordFromDocument(docstore.Document{"_id": 1})
	assert.Error(t, err)
}
