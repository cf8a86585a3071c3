// Package preflight provides readiness checks for the filesystem paths and
// external services the daemon depends on.
//
// The daemon runs RunAll once at startup and refuses to start when a check
// fails; the CLI "murmur status" command uses the individual check functions
// to display health.
package preflight
