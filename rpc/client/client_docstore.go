package client

import (
	"context"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/ValentinKolb/dVer/rpc/transport"
)

// NewRPCDocStore creates a docstore.IDocStore that forwards all operations to the
// store with the given id on a server.
// A versioning.Guard can run on top of it, the guard then runs in the client process
// and only the raw store operations go over the wire.
func NewRPCDocStore(
	storeId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (docstore.IDocStore, error) {
	adapter, err := newRPCClientAdapter(storeId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &rpcDocStore{adapter}, nil
}

type rpcDocStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the docstore package in interface.go)
// --------------------------------------------------------------------------

func (s *rpcDocStore) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	resp, err := s.invoke(ctx, common.NewGetRequest(collection, key))
	if err != nil {
		return nil, err
	}
	return docstore.Decode(resp.Doc)
}

func (s *rpcDocStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	b, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	_, err = s.invoke(ctx, common.NewInsertRequest(collection, b))
	return err
}

func (s *rpcDocStore) Replace(ctx context.Context, collection, key string, doc docstore.Document) error {
	b, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	_, err = s.invoke(ctx, common.NewReplaceRequest(collection, key, b))
	return err
}

func (s *rpcDocStore) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	b, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	_, err = s.invoke(ctx, common.NewReplaceIfRequest(collection, key, expected, b))
	return err
}

func (s *rpcDocStore) Remove(ctx context.Context, collection, key string) error {
	_, err := s.invoke(ctx, common.NewRemoveRequest(collection, key))
	return err
}

func (s *rpcDocStore) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	_, err := s.invoke(ctx, common.NewRemoveIfRequest(collection, key, expected))
	return err
}

func (s *rpcDocStore) Scan(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	resp, err := s.invoke(ctx, common.NewScanRequest(collection, prefix))
	if err != nil {
		return nil, err
	}
	return common.DecodeDocs(resp.Docs)
}

// Close closes the transport, the remote store stays open
func (s *rpcDocStore) Close() error {
	return s.close()
}
