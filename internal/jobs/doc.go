// Package jobs persists retryable generation jobs (auto-title, auto-distill)
// in SQLite and enforces their state machine.
//
// Transitions are guarded updates: queued -> processing -> completed|failed,
// with failed -> queued as the only way back. The retry count increments only
// on processing -> failed; re-queuing a failed job preserves it, and error
// fields are cleared on every transition into queued or processing. The next
// retry instant comes from an exponential backoff seeded by the retry count.
// The store itself never decides retry eligibility; callers read the failure
// reason and the retry ceiling and make that call.
package jobs
