// Package graph owns the typed view of the media graph registry.
//
// Ownership boundary:
// - raw registry objects and their property dictionaries
// - typed node/port/link/id records
// - payload translation (raw -> typed)
// - graph service, connection, registry and listener contracts
//
// The package holds no live state about the graph. Records are built once per
// add notification and are never mutated afterwards.
package graph
