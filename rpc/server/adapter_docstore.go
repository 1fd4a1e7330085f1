package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/rpc/common"
)

// NewDocStoreServerAdapter creates an adapter that maps the raw document store
// messages onto a docstore.IDocStore
func NewDocStoreServerAdapter() IRPCServerAdapter {
	return &docStoreServerAdapterImpl{}
}

type docStoreServerAdapterImpl struct{}

func (adapter *docStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, store docstore.IDocStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTDocGet:
		doc, err := store.Get(ctx, req.Collection, req.Key)
		if err != nil {
			return common.NewGetResponse(nil, err)
		}
		b, err := docstore.Encode(doc)
		return common.NewGetResponse(b, err)
	case common.MsgTDocInsert:
		doc, err := docstore.Decode(req.Doc)
		if err == nil {
			err = store.Insert(ctx, req.Collection, doc)
		}
		return common.NewInsertResponse(err)
	case common.MsgTDocReplace:
		doc, err := docstore.Decode(req.Doc)
		if err == nil {
			err = store.Replace(ctx, req.Collection, req.Key, doc)
		}
		return common.NewReplaceResponse(err)
	case common.MsgTDocReplaceIf:
		doc, err := docstore.Decode(req.Doc)
		if err == nil {
			err = store.ReplaceIfVersion(ctx, req.Collection, req.Key, req.Expected, doc)
		}
		return common.NewReplaceIfResponse(err)
	case common.MsgTDocRemove:
		err := store.Remove(ctx, req.Collection, req.Key)
		return common.NewRemoveResponse(err)
	case common.MsgTDocRemoveIf:
		err := store.RemoveIfVersion(ctx, req.Collection, req.Key, req.Expected)
		return common.NewRemoveIfResponse(err)
	case common.MsgTDocScan:
		docs, err := store.Scan(ctx, req.Collection, req.Prefix)
		if err != nil {
			return common.NewScanResponse(nil, err)
		}
		raw, err := common.EncodeDocs(docs)
		return common.NewScanResponse(raw, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC DocStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
