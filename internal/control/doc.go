// Package control serves a newline-delimited JSON request/response endpoint
// over TCP for operator tooling, and the client the CLI uses to call it.
//
// Ownership boundary:
// - control wire shapes (one request per line, one response per line)
//
// - action dispatch onto a running bridge
package control
