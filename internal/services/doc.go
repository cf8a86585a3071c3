// Package services holds the shared error taxonomy and context annotation
// helpers used by workers and the coordination core.
//
// Worker errors are wrapped with sentinel markers (network, timeout,
// validation, rate limited, transient) so the job layer can persist a coarse
// failure reason without inspecting provider-specific error types. Context
// helpers propagate memo, worker, and correlation identifiers into structured
// logs.
package services
