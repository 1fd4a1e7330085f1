package versioning

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
)

// Reserved field names of live and history documents.
const (
	FieldID        = docstore.IDField
	FieldVersion   = docstore.VersionField
	FieldChangedBy = "_changedBy"
	FieldChangedAt = "_changedAt"
)

// Keys of the composite id of a history document.
const (
	compositeOriginalID = "originalId"
	compositeVersion    = "version"
)

// TombstoneVersion is the version of every tombstone history record.
const TombstoneVersion int64 = -1

// reservedFields can not be used inside a payload.
var reservedFields = []string{FieldID, FieldVersion, FieldChangedBy, FieldChangedAt}

// --------------------------------------------------------------------------
// Live Record
// --------------------------------------------------------------------------

// LiveRecord is the current state of a versioned document.
// It is persisted as {_id, _version, ...payload}.
type LiveRecord struct {
	ID      string
	Version int64
	Payload map[string]any
}

func (r LiveRecord) document(version int64) docstore.Document {
	doc := docstore.Document(r.Payload).Clone()
	if doc == nil {
		doc = docstore.Document{}
	}
	doc[FieldID] = r.ID
	doc[FieldVersion] = version
	return doc
}

// Document returns the persisted form of the record at its current version.
func (r LiveRecord) Document() docstore.Document {
	return r.document(r.Version)
}

// LiveRecordFromDocument converts a persisted live document. A missing version counts as 0.
func LiveRecordFromDocument(doc docstore.Document) (LiveRecord, error) {
	id, ok := doc[FieldID].(string)
	if !ok {
		return LiveRecord{}, fmt.Errorf("live document has no string %s", FieldID)
	}
	var version int64
	if raw, present := doc[FieldVersion]; present {
		if version, ok = docstore.AsInt64(raw); !ok {
			return LiveRecord{}, fmt.Errorf("live document %q has a non integer %s", id, FieldVersion)
		}
	}
	payload := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == FieldID || k == FieldVersion {
			continue
		}
		payload[k] = v
	}
	return LiveRecord{ID: id, Version: version, Payload: payload}, nil
}

// validatePayload rejects payloads using reserved field names.
func validatePayload(payload map[string]any) error {
	for _, f := range reservedFields {
		if _, ok := payload[f]; ok {
			return fmt.Errorf("%w %q", ErrReservedField, f)
		}
	}
	return nil
}

// validateID rejects ids that can not be used as a document key.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if strings.Contains(id, "#") {
		return fmt.Errorf("%w: id %q must not contain '#'", ErrInvalidRecord, id)
	}
	return nil
}

// --------------------------------------------------------------------------
// History Record
// --------------------------------------------------------------------------

// HistoryID is the composite id of a history record.
type HistoryID struct {
	OriginalID string
	Version    int64
}

// Key returns the storage key of the composite id.
func (id HistoryID) Key() string {
	return docstore.CompositeKey(id.OriginalID, id.Version)
}

func (id HistoryID) String() string {
	return fmt.Sprintf("(%s, %d)", id.OriginalID, id.Version)
}

// HistoryRecord is an immutable snapshot of a live record before a mutation,
// or a tombstone marking its deletion.
//
// Version equals ID.Version for snapshots and TombstoneVersion for tombstones.
// The payload of a tombstone only holds pass-through fields such as the tenant key.
// An empty ChangedBy is not persisted.
type HistoryRecord struct {
	ID        HistoryID
	Version   int64
	ChangedBy string
	ChangedAt time.Time
	Payload   map[string]any
}

// IsTombstone reports whether the record marks a deletion.
func (h HistoryRecord) IsTombstone() bool {
	return h.Version == TombstoneVersion
}

// Document returns the persisted form of the record.
func (h HistoryRecord) Document() docstore.Document {
	doc := docstore.Document(h.Payload).Clone()
	if doc == nil {
		doc = docstore.Document{}
	}
	doc[FieldID] = map[string]any{
		compositeOriginalID: h.ID.OriginalID,
		compositeVersion:    h.ID.Version,
	}
	doc[FieldVersion] = h.Version
	if h.ChangedBy != "" {
		doc[FieldChangedBy] = h.ChangedBy
	}
	doc[FieldChangedAt] = docstore.FormatTime(h.ChangedAt)
	return doc
}

// HistoryRecordFromDocument converts a persisted history document.
func HistoryRecordFromDocument(doc docstore.Document) (HistoryRecord, error) {
	rawID, ok := doc[FieldID].(map[string]any)
	if !ok {
		return HistoryRecord{}, fmt.Errorf("history document has no composite %s", FieldID)
	}
	orig, _ := rawID[compositeOriginalID].(string)
	idVersion, ok := docstore.AsInt64(rawID[compositeVersion])
	if orig == "" || !ok {
		return HistoryRecord{}, fmt.Errorf("history document has a malformed composite %s", FieldID)
	}
	version, ok := docstore.AsInt64(doc[FieldVersion])
	if !ok {
		return HistoryRecord{}, fmt.Errorf("history document %s has no %s", HistoryID{orig, idVersion}, FieldVersion)
	}

	h := HistoryRecord{
		ID:      HistoryID{OriginalID: orig, Version: idVersion},
		Version: version,
		Payload: make(map[string]any, len(doc)),
	}
	h.ChangedBy, _ = doc[FieldChangedBy].(string)
	h.ChangedAt, _ = docstore.AsTime(doc[FieldChangedAt])
	for k, v := range doc {
		switch k {
		case FieldID, FieldVersion, FieldChangedBy, FieldChangedAt:
		default:
			h.Payload[k] = v
		}
	}
	return h, nil
}
