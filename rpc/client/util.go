package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/ValentinKolb/dVer/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPC document store and the RPC versioned collection with composition pattern
type rpcClientAdapter struct {
	storeId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// newRPCClientAdapter connects the transport and creates the adapter
func newRPCClientAdapter(
	storeId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (rpcClientAdapter, error) {
	if err := transport.Connect(config); err != nil {
		return rpcClientAdapter{}, err
	}
	return rpcClientAdapter{
		storeId:    storeId,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// invoke sends a request and returns the response.
// An error response is returned as the error it carries (see common.ErrorOf).
// This method also checks if the type of the response is the expected type
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, rpcError("failed to serialize request", err)
	}

	// Send the request
	respBytes, err := a.transport.Send(ctx, a.storeId, reqBytes)
	if err != nil {
		return nil, rpcError("failed to send request", err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err = a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, rpcError("failed to deserialize response", err)
	}

	// Check if the response is an error response
	if err := common.ErrorOf(resp); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, docstore.Errorf(docstore.RetCInternalError, "RPC client - unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}

// rpcError marks a failure of the rpc layer itself as internal store error, err stays matchable with errors.Is
func rpcError(what string, err error) error {
	return fmt.Errorf("%w: %w", docstore.Errorf(docstore.RetCInternalError, "RPC client - %s", what), err)
}

// close closes the transport
func (a *rpcClientAdapter) close() error {
	return a.transport.Close()
}
