// Package store provides persistence for memos-gateway.
//
// # Overview
//
// The store owns three entity families in one SQLite database:
//
//   - Users: identities with a role (root, admin, user, guest)
//   - Cubes: named memory collections with an owner and share grants
//   - Memories: the authoritative record for each stored memory
//
// # Interfaces
//
// Registry covers identity and cube operations and is what the engine
// lifecycle manager depends on for its two-phase bootstrap: the default user
// must exist before an engine instance can be constructed.
//
// MemoryStore covers memory record persistence. The engine keeps SQLite as
// the source of truth and maintains a separate vector index for search.
//
// Store combines both plus Close.
//
// # Errors
//
// Lookup misses return ErrNotFound. Creating an entity whose ID is taken
// returns ErrDuplicateUser / ErrDuplicateCube. Deleting an absent cube or
// re-sharing an already shared cube succeeds silently.
package store
