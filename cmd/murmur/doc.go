// Package main hosts the murmur CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces memo and job inspection, manual job
// retries, configuration scaffolding, and notification testing. Commands read
// the daemon's SQLite database directly; there is no control socket because
// every command is either a read or an idempotent write the daemon's pollers
// pick up on their own.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
