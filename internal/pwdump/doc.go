// Package pwdump adapts the JSON stream of `pw-dump --monitor` (or a capture
// of it) to the graph service contracts.
//
// pw-dump prints batches of registry objects as JSON arrays. The first batch
// lists every live global; later batches carry new globals, updates of known
// globals, and removals in the form {"id": N, "info": null}. The adapter turns
// the first appearance of an id into an add notification, ignores updates and
// turns removals of known ids into remove notifications, so listeners see the
// same add/remove sequence the registry itself would deliver.
package pwdump
