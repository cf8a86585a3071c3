package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork     = errors.New("network error")
	ErrTimeout     = errors.New("timeout")
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later failure classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureReason is the coarse classification persisted alongside failed jobs.
// Callers use it to decide retry eligibility.
type FailureReason string

const (
	FailureNetwork     FailureReason = "network"
	FailureTimeout     FailureReason = "timeout"
	FailureValidation  FailureReason = "validation"
	FailureRateLimited FailureReason = "rateLimited"
	FailureUnknown     FailureReason = "unknown"
)

// ClassifyFailure maps a worker error to the failure reason the job store
// persists after the work fails.
func ClassifyFailure(err error) FailureReason {
	switch {
	case errors.Is(err, ErrNetwork):
		return FailureNetwork
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrValidation):
		return FailureValidation
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	default:
		return FailureUnknown
	}
}

// Retryable reports whether a failure reason is eligible for automatic retry.
// Validation failures need user action first; everything else may back off
// and try again.
func (r FailureReason) Retryable() bool {
	return r != FailureValidation
}

// ParseFailureReason converts a stored string back into a known reason.
func ParseFailureReason(value string) (FailureReason, bool) {
	switch FailureReason(strings.TrimSpace(value)) {
	case FailureNetwork:
		return FailureNetwork, true
	case FailureTimeout:
		return FailureTimeout, true
	case FailureValidation:
		return FailureValidation, true
	case FailureRateLimited:
		return FailureRateLimited, true
	case FailureUnknown:
		return FailureUnknown, true
	default:
		return "", false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
