// Package handlers contains the cross-cutting event handlers the daemon
// runs: the pieces that react to bus events without owning any state table
// of their own. Handlers live in a typed registry keyed by a handler kind
// and share a common start/stop lifecycle.
package handlers
