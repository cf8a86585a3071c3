// Package daemon wires the murmur processing pipeline: an inbox watcher
// feeding the memo store, handlers reacting to bus events, the transcription
// worker, and the background job runner. A file lock keeps the daemon single
// instance.
package daemon
