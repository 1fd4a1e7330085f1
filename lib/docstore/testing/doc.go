// Package testing provides the conformance test suite for
// document stores that satisfy the docstore.IDocStore interface.
//
// The suite checks the contract the versioning layer relies on:
//   - Insert never overwrites and exactly one of many concurrent inserts wins
//   - ReplaceIfVersion and RemoveIfVersion are atomic compare-and-write operations
//   - Scan returns composite history keys in numeric version order
//   - Documents keep their value types across a round trip
//
// Example usage:
//
//	factory := func() (docstore.IDocStore, error) {
//		return NewMyStore(), nil
//	}
//
//	testing.RunDocStoreTests(t, "MyStore", factory)
package testing
