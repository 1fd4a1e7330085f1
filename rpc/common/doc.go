// Package common provides the data structures shared by the RPC client and server:
// the message protocol, the configuration structures and the logger factory.
//
// Key Components:
//
//   - Message: the single structure used for all requests and responses. Documents are
//     carried as their JSON encoding, errors are flattened into Err, Code and Kind and
//     rebuilt by ErrorOf, so errors.Is against docstore and versioning sentinels keeps
//     working on the client side.
//
//   - MessageType: the supported operations, raw document store operations
//     (get, insert, replace, replaceIf, remove, removeIf, scan) and versioned
//     operations (vCreate, vUpdate, vDelete, vGet, vHistory).
//
//   - ServerConfig: stores to serve, raft parameters, endpoint and the settings
//     of the versioning guards (GuardOptions).
//
//   - ClientConfig: endpoints, timeout and retry count of a client.
//
//   - Logger: a dragonboat logger.Factory with the format "LEVEL | package | message",
//     installed for dragonboat and all packages of this module by InitLoggers.
package common
