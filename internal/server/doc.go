// Package server exposes the chat room over HTTP and WebSocket.
//
// The implementation is organized into specialized files for configuration,
// origin checks, rate limiting, clients, routing, and HTTP handlers. Chat
// semantics live in the session package; this package only moves frames
// between sockets and sessions.
package server
