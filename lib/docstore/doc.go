// Package docstore provides a high-level interface for schema-less document storage
// with atomic, version-guarded writes and unified error handling.
// It is the persistence abstraction consumed by the versioning package and served
// over RPC by the dver server.
//
// The package focuses on:
//   - A unified interface (IDocStore) for document operations across different backends
//   - Atomic insert-if-absent and compare-version-and-write primitives
//   - A canonical document representation that survives every backend round trip
//
// Key Components:
//
//   - IDocStore Interface: The core abstraction defining operations on collections of
//     documents. Every document is addressed by the key derived from its "_id" field.
//     Plain string ids are used as is, composite ids {originalId, version} are mapped
//     to "<originalId>#<zero padded version>" so that all composite keys of one id are
//     adjacent and ordered by version. Scan with HistoryPrefix lists them in order.
//
//   - Version Guards: ReplaceIfVersion and RemoveIfVersion check the "_version" field of
//     the stored document and write in the same atomic step. A mismatch is reported with
//     RetCPreconditionFailed and leaves the store untouched. Insert never overwrites.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. The sentinel errors (ErrNotFound, ErrDuplicateKey,
//     ErrPreconditionFailed) compare by code, so errors.Is works across the RPC boundary.
//
//   - Encoding: Documents are encoded as JSON. Decode normalizes integral numbers to int64
//     and all other numbers to float64, so a version written as 3 is read back as int64(3)
//     regardless of the backend.
//
// Implementations:
//
//   - In-Memory Store (memstore): a sharded, lock-free map based on xsync with snapshot support.
//     Available in "github.com/ValentinKolb/dVer/lib/docstore/memstore".
//
//   - Bolt Store (boltstore): a single-file embedded store on top of bbolt.
//     Available in "github.com/ValentinKolb/dVer/lib/docstore/boltstore".
//
//   - SQLite Store (sqlstore): a relational store on top of the pure Go SQLite driver.
//     Available in "github.com/ValentinKolb/dVer/lib/docstore/sqlstore".
//
//   - Distributed Store (dstore): a replicated store built on the Dragonboat RAFT library.
//     Available in "github.com/ValentinKolb/dVer/lib/docstore/dstore".
//
// All implementations are verified with the shared conformance suite in
// "github.com/ValentinKolb/dVer/lib/docstore/testing".
package docstore
