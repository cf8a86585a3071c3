// Package logs reads the daemon's log file for the CLI: last-N tailing and a
// polling follow mode that survives log rotation.
package logs
