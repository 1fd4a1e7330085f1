package client

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/ValentinKolb/dVer/rpc/transport"
)

// NewRPCVersionedCollection creates a client for a versioned collection of the store
// with the given id. All operations run through the guard of the server.
// Errors are returned as *versioning.Error, failures of the rpc layer as ErrPersistence.
func NewRPCVersionedCollection(
	storeId uint64,
	collection string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*VersionedCollection, error) {
	adapter, err := newRPCClientAdapter(storeId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &VersionedCollection{rpcClientAdapter: adapter, collection: collection}, nil
}

// VersionedCollection implements versioning.Collection over RPC
type VersionedCollection struct {
	rpcClientAdapter
	collection string
}

var _ versioning.Collection = (*VersionedCollection)(nil)

// Collection returns the name of the live collection
func (c *VersionedCollection) Collection() string {
	return c.collection
}

// --------------------------------------------------------------------------
// Interface Methods (docu see versioning.Collection)
// --------------------------------------------------------------------------

func (c *VersionedCollection) Create(ctx context.Context, rec *versioning.LiveRecord) error {
	if rec == nil {
		return &versioning.Error{Kind: versioning.ErrInvalidRecord, Op: "create"}
	}
	payload, err := encodePayload("create", rec)
	if err != nil {
		return err
	}
	resp, err := c.invoke(ctx, common.NewVCreateRequest(c.collection, rec.ID, payload))
	if err != nil {
		return versioningError("create", rec.ID, 0, err)
	}
	rec.ID, rec.Version = resp.Key, resp.Expected
	return nil
}

func (c *VersionedCollection) Update(ctx context.Context, rec *versioning.LiveRecord, changedBy string) error {
	if rec == nil {
		return &versioning.Error{Kind: versioning.ErrInvalidRecord, Op: "update"}
	}
	payload, err := encodePayload("update", rec)
	if err != nil {
		return err
	}
	resp, err := c.invoke(ctx, common.NewVUpdateRequest(c.collection, rec.ID, rec.Version, changedBy, payload))
	if err != nil {
		return versioningError("update", rec.ID, rec.Version, err)
	}
	rec.Version = resp.Expected
	return nil
}

func (c *VersionedCollection) Delete(ctx context.Context, rec *versioning.LiveRecord, changedBy string) error {
	if rec == nil {
		return &versioning.Error{Kind: versioning.ErrInvalidRecord, Op: "delete"}
	}
	resp, err := c.invoke(ctx, common.NewVDeleteRequest(c.collection, rec.ID, rec.Version, changedBy))
	if err != nil {
		return versioningError("delete", rec.ID, rec.Version, err)
	}
	rec.Version = resp.Expected
	return nil
}

func (c *VersionedCollection) Apply(ctx context.Context, m versioning.Mutation) error {
	return versioning.Dispatch(ctx, c, m)
}

func (c *VersionedCollection) Get(ctx context.Context, id string) (versioning.LiveRecord, error) {
	resp, err := c.invoke(ctx, common.NewVGetRequest(c.collection, id))
	if err != nil {
		return versioning.LiveRecord{}, versioningError("get", id, 0, err)
	}
	doc, err := docstore.Decode(resp.Doc)
	if err != nil {
		return versioning.LiveRecord{}, versioningError("get", id, 0, err)
	}
	rec, err := versioning.LiveRecordFromDocument(doc)
	if err != nil {
		return versioning.LiveRecord{}, versioningError("get", id, 0, err)
	}
	return rec, nil
}

func (c *VersionedCollection) History(ctx context.Context, id string) ([]versioning.HistoryRecord, error) {
	resp, err := c.invoke(ctx, common.NewVHistoryRequest(c.collection, id))
	if err != nil {
		return nil, versioningError("history", id, 0, err)
	}
	docs, err := common.DecodeDocs(resp.Docs)
	if err != nil {
		return nil, versioningError("history", id, 0, err)
	}
	history := make([]versioning.HistoryRecord, len(docs))
	for i, doc := range docs {
		if history[i], err = versioning.HistoryRecordFromDocument(doc); err != nil {
			return nil, versioningError("history", id, 0, err)
		}
	}
	return history, nil
}

// Close closes the transport
func (c *VersionedCollection) Close() error {
	return c.close()
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// versioningError returns err if it is a *versioning.Error and wraps it as ErrPersistence otherwise
func versioningError(op, id string, version int64, err error) error {
	var verr *versioning.Error
	if errors.As(err, &verr) {
		return err
	}
	return &versioning.Error{Kind: versioning.ErrPersistence, Op: op, ID: id, Version: version, Err: err}
}

// encodePayload encodes the payload of rec, an empty payload is sent as no document
func encodePayload(op string, rec *versioning.LiveRecord) ([]byte, error) {
	if len(rec.Payload) == 0 {
		return nil, nil
	}
	b, err := docstore.Encode(rec.Payload)
	if err != nil {
		return nil, &versioning.Error{Kind: versioning.ErrInvalidRecord, Op: op, ID: rec.ID, Version: rec.Version, Err: err}
	}
	return b, nil
}
