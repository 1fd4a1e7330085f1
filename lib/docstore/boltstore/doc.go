// Package boltstore implements docstore.IDocStore on top of bbolt, a single file
// embedded key-value store.
//
// Every collection is a bucket, every document is stored JSON encoded under its key.
// Conditional operations read the current value and write inside one bolt write
// transaction; bolt allows a single writer at a time, so the check and the write are
// atomic. Keys are kept sorted by bolt, which makes Scan a cursor seek followed by a
// linear walk over the matching range.
package boltstore
