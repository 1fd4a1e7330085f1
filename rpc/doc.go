// Package rpc provides the remote access layer of dVer. It exposes the
// document stores of a server and the versioned collections on top of them
// to clients on other machines.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, error transport, configuration structures and logging.
//
//   - transport: network communication abstractions, implemented over HTTP.
//
//   - serializer: message serialization (JSON, GOB) for converting between
//     Message objects and byte arrays.
//
//   - client: RPC clients implementing docstore.IDocStore and versioning.Collection.
//
//   - server: the RPC server that hosts the stores and dispatches requests
//     to the document store and versioning adapters.
package rpc
