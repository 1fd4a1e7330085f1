package dstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/dstore/internal"
	"github.com/ValentinKolb/dVer/lib/docstore/memstore"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// DocStateMachine is a state machine implementation for Dragonboat RAFT.
// The replicated state is an in-memory document store.
type DocStateMachine struct {
	replicaID uint64
	shardID   uint64
	store     memstore.Store // the actual data storage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &DocStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			store:     memstore.NewStore(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query to the corresponding store method.
func (fsm *DocStateMachine) Lookup(itf interface{}) (interface{}, error) {

	q, ok := itf.(internal.Query)
	if !ok {
		return nil, docstore.Errorf(docstore.RetCInternalError, "invalid Query type: %T", itf)
	}

	ctx := context.Background()
	switch q.Type {
	case internal.QueryTGet:
		doc, err := fsm.store.Get(ctx, q.Collection, q.Key)
		if docstore.IsNotFound(err) {
			return internal.QueryResult{Ok: false}, nil
		}
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{Ok: true, Doc: doc}, nil
	case internal.QueryTScan:
		docs, err := fsm.store.Scan(ctx, q.Collection, q.Key)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{Ok: true, Docs: docs}, nil
	default:
		return nil, docstore.Errorf(docstore.RetCInvalidOperation, "unknown Query operation: %s", q.Type)
	}
}

// Update handles write commands on the document store.
// All write operations are serialized into []byte and are accessible via the entries struct.
// The outcome of every command is stored as result code (Value) and message (Data).
func (fsm *DocStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	ctx := context.Background()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = result(docstore.NewError(docstore.RetCInvalidOperation, "empty command ignored"), "")
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = result(docstore.Errorf(docstore.RetCInternalError, "failed to deserialize command: %v", err), "")
			continue
		}

		var doc docstore.Document
		if cmd.Doc != nil {
			var err error
			if doc, err = docstore.Decode(cmd.Doc); err != nil {
				entries[idx].Result = result(err, "")
				continue
			}
		}

		var err error
		switch cmd.Type {
		case internal.CommandTInsert:
			err = fsm.store.Insert(ctx, cmd.Collection, doc)
		case internal.CommandTReplace:
			err = fsm.store.Replace(ctx, cmd.Collection, cmd.Key, doc)
		case internal.CommandTReplaceIfVersion:
			err = fsm.store.ReplaceIfVersion(ctx, cmd.Collection, cmd.Key, cmd.Expected, doc)
		case internal.CommandTRemove:
			err = fsm.store.Remove(ctx, cmd.Collection, cmd.Key)
		case internal.CommandTRemoveIfVersion:
			err = fsm.store.RemoveIfVersion(ctx, cmd.Collection, cmd.Key, cmd.Expected)
		default:
			err = docstore.Errorf(docstore.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
		}
		entries[idx].Result = result(err, fmt.Sprintf("%s: %s/%s", cmd.Type, cmd.Collection, cmd.Key))
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// result converts the outcome of a command into a raft result.
func result(err error, msg string) sm.Result {
	if err == nil {
		return sm.Result{Value: uint64(docstore.RetCSuccess), Data: []byte(msg)}
	}
	return sm.Result{Value: uint64(docstore.CodeOf(err)), Data: []byte(err.Error())}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *DocStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy store snapshot to the writer
func (fsm *DocStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.store.Save(writer)
}

// RecoverFromSnapshot restores the store from a snapshot.
func (fsm *DocStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.store.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *DocStateMachine) Close() error {
	return fsm.store.Close()
}
