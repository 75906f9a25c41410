// Package server implements the Parley chat backend: a WebSocket hub with a
// durable message log and a presence directory enforcing unique display
// names.
//
// The implementation is organized into specialized files for configuration,
// storage, presence, the message log, session management, hub and client
// plumbing, routing, and HTTP handlers to keep the codebase maintainable and
// testable as the project grows.
package server
