// Package transport defines the interfaces of the RPC transport layer.
//
// A server transport receives serialized requests addressed to a store id and hands
// them, together with the request context, to a ServerHandleFunc. A client transport
// sends serialized requests to one of its configured endpoints.
//
// The only implementation lives in the http subpackage.
package transport
