package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// GuardOptionsFunc returns the guard options for a live collection
type GuardOptionsFunc func(collection string) *versioning.Options

// NewVersioningServerAdapter creates an adapter that runs the versioned operations
// through a versioning.Guard. One guard per collection is created on first use.
// The adapter must only be used with a single store.
func NewVersioningServerAdapter(options GuardOptionsFunc) IRPCServerAdapter {
	return &versioningServerAdapterImpl{
		options: options,
		guards:  xsync.NewMapOf[string, *versioning.Guard](),
	}
}

type versioningServerAdapterImpl struct {
	options GuardOptionsFunc
	guards  *xsync.MapOf[string, *versioning.Guard]
}

func (adapter *versioningServerAdapterImpl) Handle(ctx context.Context, req *common.Message, store docstore.IDocStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	guard, err := adapter.guard(req.Collection, store)
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTVerCreate:
		payload, err := decodePayload(req.Doc)
		if err != nil {
			return common.NewVMutationResponse(req.MsgType, req.Key, 0, err)
		}
		rec := versioning.LiveRecord{ID: req.Key, Payload: payload}
		err = guard.Apply(ctx, versioning.CreateIntent{Record: &rec})
		return common.NewVMutationResponse(req.MsgType, rec.ID, rec.Version, err)
	case common.MsgTVerUpdate:
		payload, err := decodePayload(req.Doc)
		if err != nil {
			return common.NewVMutationResponse(req.MsgType, req.Key, req.Expected, err)
		}
		rec := versioning.LiveRecord{ID: req.Key, Version: req.Expected, Payload: payload}
		err = guard.Apply(ctx, versioning.UpdateIntent{Record: &rec, ChangedBy: req.ChangedBy})
		return common.NewVMutationResponse(req.MsgType, rec.ID, rec.Version, err)
	case common.MsgTVerDelete:
		rec := versioning.LiveRecord{ID: req.Key, Version: req.Expected}
		err := guard.Apply(ctx, versioning.DeleteIntent{Record: &rec, ChangedBy: req.ChangedBy})
		return common.NewVMutationResponse(req.MsgType, rec.ID, rec.Version, err)
	case common.MsgTVerGet:
		rec, err := guard.Get(ctx, req.Key)
		if err != nil {
			return common.NewVGetResponse(nil, err)
		}
		b, err := docstore.Encode(rec.Document())
		return common.NewVGetResponse(b, err)
	case common.MsgTVerHistory:
		history, err := guard.History(ctx, req.Key)
		if err != nil {
			return common.NewVHistoryResponse(nil, err)
		}
		docs := make([]docstore.Document, len(history))
		for i, h := range history {
			docs[i] = h.Document()
		}
		raw, err := common.EncodeDocs(docs)
		return common.NewVHistoryResponse(raw, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC VersioningAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// guard returns the cached guard of a collection or creates it
func (adapter *versioningServerAdapterImpl) guard(collection string, store docstore.IDocStore) (*versioning.Guard, error) {
	if g, ok := adapter.guards.Load(collection); ok {
		return g, nil
	}
	g, err := versioning.NewGuard(store, adapter.options(collection))
	if err != nil {
		return nil, err
	}
	g, _ = adapter.guards.LoadOrStore(collection, g)
	Logger.Infof("created guard (%s)", g.Options())
	return g, nil
}

// decodePayload decodes the payload of a create or update request, an empty payload is allowed
func decodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	doc, err := docstore.Decode(raw)
	if err != nil {
		return nil, &versioning.Error{Kind: versioning.ErrInvalidRecord, Op: "decode", Err: err}
	}
	return doc, nil
}
