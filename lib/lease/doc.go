// Package lease implements short lived, self expiring locks on top of any
// docstore.IDocStore. The versioning package uses it to serialize writers of the
// same document, but the package has no knowledge of documents or versions.
//
// The lease manager only ever stores in the provided IDocStore and has no other
// internal state. It is safe to create it multiple times on the same store and
// collection; all instances see the same leases.
//
// Implementation Approach:
//
//   - Acquisition: a lease document {_id: key, _version: stamp, owner, expiresAt}
//     is inserted. Insert is atomic and never overwrites, so only one caller wins.
//     The owner is a random UUID returned to the caller.
//
//   - Expiration: if the insert hits an existing lease whose expiresAt lies in the
//     past, that exact lease is removed with RemoveIfVersion(stamp) and the insert
//     is retried once. Two callers racing for the same expired lease can not both
//     remove it and at most one of the retries succeeds.
//
//   - Release: the stored owner is compared with the caller's owner ID before the
//     lease is removed, again guarded by its stamp.
//
// Clocks:
//
// Expiration relies on the wall clocks of the callers. With several processes
// sharing a store, the TTL must be considerably larger than the expected clock skew
// and the longest write performed while holding a lease.
package lease
