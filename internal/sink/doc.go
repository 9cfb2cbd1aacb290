// Package sink owns UI-facing delivery of envelopes.
//
// Ownership boundary:
// - in-process ordered channel
// - fan-out over several sinks
// - NATS subject publishing
//
// Every sink is written to by exactly one producer, the bridge goroutine, and
// must deliver envelopes in the order Emit was called.
package sink
