// Package server implements the real-time relay: WebSocket connection
// handling, the persist-then-broadcast event loop, and the HTTP surface for
// history lookups and liveness.
//
// The implementation is organized into specialized files for the hub,
// clients, handlers, routing, and origin policy to keep the codebase
// maintainable and testable as the project grows.
package server
