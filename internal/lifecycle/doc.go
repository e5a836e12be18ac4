// ABOUTME: Package documentation for engine lifecycle management
// ABOUTME: Describes lazy construction, in-place adjustment vs rebuild, and reset

// Package lifecycle manages the process-wide memory engine singleton.
//
// The gateway never constructs an engine directly. It asks the Manager,
// which builds one lazily from the environment baseline on the first request
// that needs it, and hands the same instance to every subsequent caller.
// Construction is guarded so concurrent first requests produce exactly one
// engine.
//
// An explicit configuration (from the configure endpoint) goes through
// Replace. When the new configuration differs only in fields the engine can
// change on a live instance, the manager adjusts it in place; a change to
// the model, embedder, or chunker settings forces a rebuild, which re-indexes
// the persisted memories. Either way the previous instance keeps serving
// until its replacement is ready, and construction failures leave it in
// place.
//
// The manager also bootstraps the configured default user into the registry
// before the engine validates it, so a fresh database and a fresh engine can
// come up together.
package lifecycle
