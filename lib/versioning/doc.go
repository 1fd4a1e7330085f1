// Package versioning implements optimistic concurrency control with an audit
// trail for documents stored in any docstore.IDocStore.
//
// Every mutation of a live record is checked against its persisted version. Each
// successful update appends exactly one history record with the state before the
// update; a deletion appends the last state and a tombstone. History records are
// never changed or removed by this package.
//
// Components:
//
//   - Guard: loads the persisted live record, compares its version with the version
//     the caller read, lets the HistoryWriter append the pre-image and finally writes
//     the live record with the next version. Mutations are expressed as the intents
//     CreateIntent, UpdateIntent and DeleteIntent and dispatched with Guard.Apply,
//     or called directly with Create, Update and Delete.
//
//   - HistoryWriter: turns a pre-image into a history record keyed by the composite id
//     (originalId, version) and inserts it. It has no conflict logic of its own.
//
// Documents:
//
//	live:      {_id: "p1", _version: 3, ...payload}
//	history:   {_id: {originalId: "p1", version: 2}, _version: 2, _changedBy: "u1", _changedAt: "...", ...payload}
//	tombstone: {_id: {originalId: "p1", version: 4}, _version: -1, _changedBy: "u1", _changedAt: "...", companyId: "c1"}
//
// The actor of a mutation (changedBy) is an argument of Update and Delete. It is
// written to the history record only and never appears on the live record.
//
// Concurrency:
//
// Writers of the same record are serialized in the store, not in the process:
//
//  1. A write lease (see package lease) is taken for the record. If another writer
//     holds it, the mutation fails with ErrVersionConflict right away.
//  2. The persisted record is loaded and compared.
//  3. The history record is inserted. Insert never overwrites, so a second history
//     record for the same composite id is impossible.
//  4. The live record is written with ReplaceIfVersion / RemoveIfVersion, so even a
//     writer whose lease expired can not overwrite a newer version.
//
// Of two updates loaded from the same version exactly one succeeds, the other
// fails with ErrVersionConflict.
//
// Failure Window:
//
// Once the history record is written, the live write is detached from the caller's
// context and can not be cancelled. If it fails anyway (store outage, crash) an
// orphaned history record remains. The next mutation of that record then fails with
// ErrInvariantViolation because its history slot is taken; the error is logged with
// the affected composite id so the orphan can be inspected and removed by an operator.
//
// Errors:
//
// All errors are *Error values that match one of ErrNotFound, ErrVersionConflict,
// ErrPersistence, ErrInvariantViolation or ErrInvalidRecord (ErrReservedField) with
// errors.Is. Errors are never retried or swallowed; Options.LogErrors only adds a log line.
package versioning
