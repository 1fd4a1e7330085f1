// Package memstore implements docstore.IDocStore in memory.
//
// Collections are kept in a concurrent map (xsync.MapOf) of concurrent maps, one per
// collection. Every conditional operation (Insert, ReplaceIfVersion, RemoveIfVersion)
// runs inside xsync's per-key Compute, so the check and the write are atomic without
// any global lock. Documents are stored encoded, which makes every read a private copy.
//
// The store can write and read binary snapshots (Save/Load). The raft state machine of
// the dstore package uses this for its snapshots, so a single memstore instance is
// both the standalone in-memory backend and the replicated state of a raft shard.
//
// Scan collects the matching keys and sorts them, its cost is linear in the size of
// the collection. This is fine for history lookups of moderately sized collections;
// use the bolt or sqlite backend for large data sets.
package memstore
