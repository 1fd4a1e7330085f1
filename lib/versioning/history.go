package versioning

import (
	"context"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
)

// HistoryWriter shapes history records and appends them to the history collection.
// It performs no conflict detection, see Guard.
type HistoryWriter struct {
	store      docstore.IDocStore
	collection string
	now        func() time.Time
}

// NewHistoryWriter creates a writer appending to the given collection.
// If now is nil, time.Now is used.
func NewHistoryWriter(store docstore.IDocStore, collection string, now func() time.Time) *HistoryWriter {
	if now == nil {
		now = time.Now
	}
	return &HistoryWriter{store: store, collection: collection, now: now}
}

// Collection returns the name of the history collection.
func (w *HistoryWriter) Collection() string {
	return w.collection
}

// Write persists the history record of preImage under the composite id (preImage.ID, version).
//
// A snapshot copies the whole payload of preImage and carries version as its version.
// A tombstone copies nothing but the extra fields and carries TombstoneVersion.
// An empty changedBy is omitted.
//
// A history record that already exists is reported as ErrInvariantViolation,
// every other store failure as ErrPersistence.
func (w *HistoryWriter) Write(ctx context.Context, preImage LiveRecord, version int64, changedBy string, tombstone bool, extra map[string]any) (HistoryRecord, error) {
	h := HistoryRecord{
		ID:        HistoryID{OriginalID: preImage.ID, Version: version},
		Version:   version,
		ChangedBy: changedBy,
		ChangedAt: w.now().UTC(),
	}
	if tombstone {
		h.Version = TombstoneVersion
		h.Payload = docstore.Document(extra).Clone()
	} else {
		h.Payload = docstore.Document(preImage.Payload).Clone()
	}
	if h.Payload == nil {
		h.Payload = map[string]any{}
	}

	op := "history"
	if err := w.store.Insert(ctx, w.collection, h.Document()); err != nil {
		if docstore.IsDuplicateKey(err) {
			return HistoryRecord{}, newError(ErrInvariantViolation, op, preImage.ID, version, err)
		}
		return HistoryRecord{}, newError(ErrPersistence, op, preImage.ID, version, err)
	}
	observeHistory(w.collection, tombstone)
	return h, nil
}

// Read returns all history records of id in the order of their composite version.
func (w *HistoryWriter) Read(ctx context.Context, id string) ([]HistoryRecord, error) {
	docs, err := w.store.Scan(ctx, w.collection, docstore.HistoryPrefix(id))
	if err != nil {
		return nil, newError(ErrPersistence, "history", id, 0, err)
	}
	records := make([]HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		h, err := HistoryRecordFromDocument(doc)
		if err != nil {
			return nil, newError(ErrPersistence, "history", id, 0, err)
		}
		records = append(records, h)
	}
	return records, nil
}
