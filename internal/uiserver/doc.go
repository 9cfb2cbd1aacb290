// Package uiserver exposes the bridge to UI processes over HTTP.
//
// Ownership boundary:
// - the websocket hub that implements the bridge's sink
//
// - the readiness handshake endpoints
//
// - health, status, diagnostics and metrics routes
package uiserver
