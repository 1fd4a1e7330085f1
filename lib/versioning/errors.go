package versioning

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Sentinel errors. Every error returned by a Guard or HistoryWriter matches
// exactly one of them with errors.Is.
var (
	// ErrNotFound is returned when the persisted live record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when the caller's version does not match the
	// persisted version, or when another writer is mutating the same record.
	ErrVersionConflict = errors.New("version conflict")
	// ErrPersistence is returned when the underlying store failed.
	ErrPersistence = errors.New("persistence error")
	// ErrInvariantViolation is returned when a history record with the same composite id already exists.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidRecord is returned for records that can not be stored (bad id, nil record, ...).
	ErrInvalidRecord = errors.New("invalid record")
	// ErrReservedField is returned when a payload uses one of the reserved field names.
	ErrReservedField = fmt.Errorf("%w: reserved field", ErrInvalidRecord)
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrVersionConflict, "VersionConflict"},
	{ErrPersistence, "PersistenceError"},
	{ErrInvariantViolation, "InvariantViolation"},
	{ErrReservedField, "ReservedField"},
	{ErrInvalidRecord, "InvalidRecord"},
}

// KindOf returns the name of the error kind of err, or "" if err is nil or not a versioning error.
// The name is used to transport error kinds over the wire.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return ""
}

// KindByName is the inverse of KindOf. Unknown names map to ErrPersistence.
func KindByName(name string) error {
	for _, k := range kindNames {
		if k.name == name {
			return k.kind
		}
	}
	return ErrPersistence
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error describes a failed mutation. It matches its Kind and, if set, the
// underlying store error with errors.Is and errors.As.
type Error struct {
	Kind    error  // One of the sentinel errors
	Op      string // create, update, delete, get, history
	ID      string // Id of the live record
	Version int64  // Version involved, the persisted one for conflicts
	Err     error  // Underlying error, may be nil
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.ID != "" {
		fmt.Fprintf(&sb, " %q", e.ID)
	}
	if e.Version != 0 {
		fmt.Fprintf(&sb, " (version %d)", e.Version)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, id string, version int64, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Version: version, Err: err}
}
