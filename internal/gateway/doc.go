// ABOUTME: Package documentation for the HTTP gateway
// ABOUTME: Describes the envelope contract and error taxonomy

// Package gateway exposes the memory engine over HTTP.
//
// The gateway is a thin dispatcher: it decodes requests, asks the lifecycle
// manager for the engine (constructing it lazily on first use), invokes one
// engine operation, and wraps the outcome in the uniform response envelope
// {code, message, data}. It holds no domain state of its own.
//
// Errors are classified by sentinel: validation failures, invalid roles, and
// invalid configurations are 400s; missing users, cubes, and memories are
// 404s; everything else, including refused cube shares and chat requests
// that produce no reply, is a 500. Every failure is logged with its
// operation name before conversion, so the envelope can stay terse.
package gateway
