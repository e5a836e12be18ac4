// ABOUTME: Package documentation for the memory engine
// ABOUTME: Explains the engine's scope model, input kinds, and storage split

// Package memory implements the memory-management engine.
//
// The Engine is the process-wide core behind the HTTP gateway. It owns the
// active configuration, the current default user/session scope, the chat and
// embedding model clients, and a per-cube vector index. Durable state lives
// in the store package (users, cubes, shares, memory records including their
// embeddings); the vector index is an in-memory projection rebuilt from the
// persisted embeddings at construction time.
//
// # Scope model
//
// Every operation takes an optional user id that falls back to the engine's
// current default user, and most take an optional cube id. An absent cube id
// means different things per operation: Add targets the user's implicit
// default cube (auto-registered on first use), while GetAll and Search fan
// out across every cube the user owns or has been granted access to. A named
// cube must be registered and accessible, otherwise the operation fails with
// ErrCubeNotRegistered.
//
// # Input kinds
//
// Add accepts exactly one of three input kinds: conversational messages
// (stored one memory per turn), raw content, or a document path (both
// chunked before storage). Each stored memory is embedded once and indexed
// for similarity search.
//
// # Mutability
//
// The engine is constructed from a frozen config, but a small set of fields
// (default user, session, retrieval depth, memory toggles) can be changed on
// the running instance through Apply. Turning textual memory off makes the
// memory operations fail fast with ErrTextualMemoryDisabled without touching
// stored data.
package memory
