// Package ledger implements the tamper-evident, append-only evidence
// chain at the heart of the platform.
//
// Every entry commits to its predecessor: Hash is the SHA-256 of the
// canonical encoding of the entry's own fields plus PrevHash, and the
// first entry ever appended carries the literal sentinel "genesis" as
// its PrevHash. Any third party holding the public entries can replay
// the chain with Verify and detect the first altered link, without
// trusting the storage layer.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for tests and development.
//   - PostgresStore: durable, for production use; appends are
//     serialised with a transaction-scoped advisory lock so that
//     concurrent writers can never fork the chain.
package ledger
