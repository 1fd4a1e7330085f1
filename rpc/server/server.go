package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/boltstore"
	"github.com/ValentinKolb/dVer/lib/docstore/dstore"
	"github.com/ValentinKolb/dVer/lib/docstore/memstore"
	"github.com/ValentinKolb/dVer/lib/docstore/sqlstore"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/ValentinKolb/dVer/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverStore is a store served by the RPC server together with
// the adapters that handle requests for it
type serverStore struct {
	Store     docstore.IDocStore
	Docs      IRPCServerAdapter
	Versioned IRPCServerAdapter
}

// adapterFor returns the adapter responsible for a message type
func (s serverStore) adapterFor(msgType common.MessageType) IRPCServerAdapter {
	switch msgType {
	case common.MsgTVerCreate, common.MsgTVerUpdate, common.MsgTVerDelete, common.MsgTVerGet, common.MsgTVerHistory:
		return s.Versioned
	default:
		return s.Docs
	}
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create the RPC server
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		stores:     xsync.NewMapOf[uint64, serverStore](),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	stores     *xsync.MapOf[uint64, serverStore]
	nodeHost   *dragonboat.NodeHost
}

// Handle decodes a request, lets the adapter of the store handle it and encodes the response
func (s *RPCServer) Handle(ctx context.Context, storeId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Get appropriate store
	store, ok := s.stores.Load(storeId)

	// Case store does not exist -> error
	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("store %d not found", storeId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		if s.config.TimeoutSecond > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
			defer cancel()
		}
		respMsg = store.adapterFor(msg.MsgType).Handle(ctx, &msg, store.Store)
	}

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// openStore creates the backend of a store
func (s *RPCServer) openStore(cfg common.ServerStore) (docstore.IDocStore, error) {
	switch cfg.Type {
	case common.StoreTypeMemory:
		return memstore.NewStore(), nil
	case common.StoreTypeBolt:
		return boltstore.Open(filepath.Join(s.config.DataDir, fmt.Sprintf("store-%d.bolt", cfg.StoreID)))
	case common.StoreTypeSQLite:
		return sqlstore.Open(filepath.Join(s.config.DataDir, fmt.Sprintf("store-%d.sqlite", cfg.StoreID)))
	case common.StoreTypeRaft:
		if s.nodeHost == nil {
			return nil, fmt.Errorf("node host is nil, cannot create raft store")
		}
		// Start Raft for the shard
		if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig(cfg.StoreID)); err != nil {
			return nil, fmt.Errorf("failed to start shard %d: %w", cfg.StoreID, err)
		}
		timeout := time.Duration(s.config.TimeoutSecond) * time.Second
		return dstore.NewDistributedStore(s.nodeHost, cfg.StoreID, timeout), nil
	default:
		return nil, fmt.Errorf("invalid store type: %s", cfg.Type)
	}
}

// Init creates the loggers, the node host and all stores and registers the
// request handler at the transport. Serve calls it.
func (s *RPCServer) Init() error {

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	if s.config.DataDir != "" {
		if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	// Only create the NodeHost if we have raft stores
	if s.config.HasRaftStore() {
		nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nh
	}

	// CREATE STORES

	for _, storeConfig := range s.config.Stores {
		if _, exists := s.stores.Load(storeConfig.StoreID); exists {
			return fmt.Errorf("duplicate store id %d", storeConfig.StoreID)
		}

		backend, err := s.openStore(storeConfig)
		if err != nil {
			return err
		}

		s.stores.Store(storeConfig.StoreID, serverStore{
			Store:     backend,
			Docs:      NewDocStoreServerAdapter(),
			Versioned: NewVersioningServerAdapter(s.config.GuardOptions),
		})
		Logger.Infof("created %s store %d", storeConfig.Type, storeConfig.StoreID)
	}

	Logger.Infof("dVer setup completed successfully")

	// Configure the transport layer
	if s.transport != nil {
		s.transport.RegisterHandler(s.Handle)
	}

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the stores and start the transport layer.
// It blocks until the transport stops, then closes all stores.
func (s *RPCServer) Serve(ctx context.Context) error {
	defer s.Close()
	if err := s.Init(); err != nil {
		return err
	}
	if s.transport == nil {
		return fmt.Errorf("no transport configured")
	}
	return s.transport.Listen(ctx, s.config)
}

// Close closes all stores and stops the node host
func (s *RPCServer) Close() {
	s.stores.Range(func(id uint64, store serverStore) bool {
		if err := store.Store.Close(); err != nil {
			Logger.Warningf("failed to close store %d: %v", id, err)
		}
		return true
	})
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
}
