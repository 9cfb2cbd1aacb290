// Package bridge owns the registry bridge: the goroutine that connects to the
// graph service, installs the registry listener, waits on the readiness gate
// and then drives the service's run loop, turning every notification into an
// ordered UI envelope.
//
// Ownership boundary:
// - lifecycle phases and guarded transitions
//
// - listener handle and connection teardown (single owner)
//
// - envelope sequencing and emission into one sink
//
// - translation failure containment and the diagnostics ring
package bridge
