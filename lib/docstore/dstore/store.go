package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("docstore")
)

// storeImpl is the concrete implementation of the distributed document store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The shard must have been started with CreateStateMachineFactory.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) docstore.IDocStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns a *docstore.Error if an error occurs, or nil on success.
func (s *storeImpl) write(ctx context.Context, cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return docstore.NewError(docstore.RetCInternalError, err.Error())
		}
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncPropose(pctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return docstore.NewError(docstore.RetCInternalError, err.Error())
		}
		if res.Value != uint64(docstore.RetCSuccess) {
			return docstore.NewError(docstore.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return docstore.NewError(docstore.RetCInternalError, "timeout")
}

// read queries the state machine with SyncRead and returns the QueryResult.
// If the read fails due to a system busy error, it is retried up to 5 times.
func (s *storeImpl) read(ctx context.Context, q internal.Query) (internal.QueryResult, error) {
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return internal.QueryResult{}, docstore.NewError(docstore.RetCInternalError, err.Error())
		}
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncRead(rctx, s.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			var de *docstore.Error
			if errors.As(err, &de) {
				return internal.QueryResult{}, de
			}
			return internal.QueryResult{}, docstore.NewError(docstore.RetCInternalError, err.Error())
		}

		casted, ok := res.(internal.QueryResult)
		if !ok {
			return internal.QueryResult{}, docstore.NewError(docstore.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected internal.QueryResult", res))
		}
		return casted, nil
	}
	return internal.QueryResult{}, docstore.NewError(docstore.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.IDocStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	res, err := s.read(ctx, internal.Query{Type: internal.QueryTGet, Collection: collection, Key: key})
	if err != nil {
		return nil, err
	}
	if !res.Ok {
		return nil, docstore.Errorf(docstore.RetCNotFound, "key %q not found in %q", key, collection)
	}
	// the result references the replica's state, hand out a copy
	return res.Doc.Clone(), nil
}

func (s *storeImpl) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	// validate locally, invalid documents never enter the raft log
	key, err := docstore.KeyOf(doc)
	if err != nil {
		return err
	}
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.write(ctx, internal.Command{Type: internal.CommandTInsert, Collection: collection, Key: key, Doc: data})
}

func (s *storeImpl) Replace(ctx context.Context, collection, key string, doc docstore.Document) error {
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.write(ctx, internal.Command{Type: internal.CommandTReplace, Collection: collection, Key: key, Doc: data})
}

func (s *storeImpl) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.write(ctx, internal.Command{
		Type:       internal.CommandTReplaceIfVersion,
		Expected:   expected,
		Collection: collection,
		Key:        key,
		Doc:        data,
	})
}

func (s *storeImpl) Remove(ctx context.Context, collection, key string) error {
	return s.write(ctx, internal.Command{Type: internal.CommandTRemove, Collection: collection, Key: key})
}

func (s *storeImpl) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	return s.write(ctx, internal.Command{
		Type:       internal.CommandTRemoveIfVersion,
		Expected:   expected,
		Collection: collection,
		Key:        key,
	})
}

func (s *storeImpl) Scan(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	res, err := s.read(ctx, internal.Query{Type: internal.QueryTScan, Collection: collection, Key: prefix})
	if err != nil {
		return nil, err
	}
	return res.Docs, nil
}

// Close does nothing, the node host is owned by the caller.
func (s *storeImpl) Close() error {
	return nil
}
