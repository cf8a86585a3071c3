// Package logging wraps log/slog with the attribute helpers, standardized
// field names, and progress sampling used across the daemon.
//
// All components log through *slog.Logger values handed to them at
// construction; NewNop gives tests a silent logger. Progress-style log spam
// is suppressed with ProgressSampler, which also throttles progress event
// re-broadcasts in the operation coordinator.
package logging
