// Package operations tracks every long-running unit of background work and
// enforces the rules between them.
//
// Exclusivity violations refuse registration outright (a second recording for
// the same memo would silently defer a user action); ceiling violations queue
// instead, because deferred background work is expected to drain. Terminal
// operations are immutable and retained for reporting until Reap removes
// them. Lifecycle transitions are published on the shared event bus; progress
// re-broadcasts are throttled through a progress sampler.
package operations
