// Package memos persists the voice memos the daemon tracks: one row per
// audio file discovered in the inbox.
package memos
