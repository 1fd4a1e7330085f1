// Package dstore provides a distributed implementation of the docstore.IDocStore
// interface, built on the Dragonboat RAFT consensus library.
//
// Every write (Insert, Replace, ReplaceIfVersion, Remove, RemoveIfVersion) is encoded
// as a binary command (see the internal package) and proposed to the raft log. Once
// the entry is committed, every replica applies it to its own in-memory document
// store (memstore). Since all replicas apply the same commands in the same order,
// the version checks of the conditional commands evaluate identically everywhere:
// a guarded write that succeeds on one replica succeeds on all of them.
//
// Reads use SyncRead and are therefore linearizable.
//
// Result Codes:
//
//	The state machine reports the outcome of each command as the docstore.RetCode in
//	the raft result value and the error message in its data. The store turns them
//	back into *docstore.Error values, so NotFound, DuplicateKey and PreconditionFailed
//	reach the caller exactly as with a local store.
//
// Snapshots:
//
//	Snapshots are fuzzy: the memstore is saved while updates continue. Recovery loads
//	the snapshot and replays all raft entries committed after it.
//
// Usage:
//
//	// Create NodeHost (RAFT client)
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	// Create and start shard (RAFT server)
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	// Create store with appropriate timeout
//	store := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// Limitations:
//
//   - Majority Requirement: Operations cannot proceed if a majority of nodes are unavailable
//   - Memory: every replica keeps the whole shard in memory
//   - Leader Dependency: Write operations require the leader to be available
package dstore
