// Package host wires one bridge process: graph source, sinks, the UI server,
// the control endpoint and the bridge goroutine, and runs them until signal
// shutdown or until the bridge stops.
//
// Ownership boundary:
// - process-level configuration and its validation
//
// - startup order (bind listeners, spawn bridge, serve)
//
// - mapping bridge exit reasons onto a process result
package host
