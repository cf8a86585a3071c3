package jobs

import (
	"time"

	"murmur/internal/services"
)

// Kind identifies a generation job family.
type Kind string

const (
	KindTitle   Kind = "title"
	KindDistill Kind = "distill"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindTitle:
		return KindTitle, true
	case KindDistill:
		return KindDistill, true
	default:
		return "", false
	}
}

// Status represents the lifecycle of a generation job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
)

// Job is a retryable background task persisted across process restarts.
//
// RetryCount increments only on the processing to failed transition;
// re-enqueuing a failed job preserves it. LastError and FailureReason are
// cleared on every transition into queued or processing.
type Job struct {
	MemoID        string
	Kind          Kind
	Mode          string
	Status        Status
	RetryCount    int
	LastError     string
	FailureReason services.FailureReason
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Due reports whether a queued job is eligible to run at the given instant.
func (j Job) Due(now time.Time) bool {
	if j.Status != StatusQueued {
		return false
	}
	return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
}

// ExhaustedRetries reports whether automatic re-enqueue should stop. The
// state machine itself never forbids a manual retry.
func (j Job) ExhaustedRetries(maxRetries int) bool {
	return maxRetries > 0 && j.RetryCount >= maxRetries
}
