// Package http implements the RPC transport over HTTP.
//
// The server accepts requests as POST /{storeId} with the serialized message as body
// and answers with the serialized response. GET /metrics exposes the metrics of the
// process (VictoriaMetrics format, including the versioning counters) for Prometheus.
// With log level debug every request is logged.
//
// The client sends requests round-robin to its endpoints. A failed request is retried
// on the next endpoint up to RetryCount times, unless the context of the call is done.
// The client is safe for concurrent use.
package http
