// Package server implements the RPC server of dVer.
// It hosts a set of document stores and answers requests for them through adapters.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes a request against a docstore.IDocStore.
//
//   - NewDocStoreServerAdapter: raw document store operations (get, insert, replace, remove, scan).
//
//   - NewVersioningServerAdapter: versioned operations. Every live collection gets its own
//     versioning.Guard, created on first use from the versioning section of the server config.
//
//   - NewRPCServer: creates a configured server with the specified transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Stores: []common.ServerStore{
//	    {StoreID: 1, Type: common.StoreTypeMemory},
//	    {StoreID: 2, Type: common.StoreTypeBolt},
//	  },
//	  DataDir:       "./data",
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  http.NewHttpServerTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Store types can be mixed within a single server:
//
//   - memory: in-process store, lost on restart.
//   - bolt: a bbolt file below DataDir.
//   - sqlite: a sqlite database below DataDir.
//   - raft: replicated with dragonboat. ReplicaID, ClusterMembers and the raft
//     tuning values must be configured.
//
// The server handles concurrent requests. Serve must only be called once.
package server
