package internal

import "github.com/ValentinKolb/dVer/lib/docstore"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet  QueryType = iota // Retrieve a document by key.
	QueryTScan                  // Retrieve all documents with a key prefix.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTScan:
		return "Scan"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type       QueryType // The type of Query to perform.
	Collection string    // The collection to query.
	Key        string    // The key for QueryTGet, the prefix for QueryTScan.
}

// QueryResult is the result of a query.
// Lookups never cross the network, so the documents are passed as is.
type QueryResult struct {
	Ok   bool                // false if the document of a QueryTGet does not exist
	Doc  docstore.Document   // result of QueryTGet
	Docs []docstore.Document // result of QueryTScan
}
