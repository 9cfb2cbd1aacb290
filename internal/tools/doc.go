// Package tools provides reusable runtime helpers shared by graph-service
// adapters.
//
// Ownership boundary:
// - long-running process launching with a streamed stdout
// - binary resolution
package tools
