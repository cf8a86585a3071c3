package operations

import "time"

// Type identifies the kind of background work an operation tracks.
type Type string

const (
	TypeRecording         Type = "recording"
	TypeTranscription     Type = "transcription"
	TypeAnalysis          Type = "analysis"
	TypeTitleGeneration   Type = "title_generation"
	TypeDistillGeneration Type = "distill_generation"
)

// Category groups operation types for ceiling accounting and queue position.
type Category string

const (
	CategoryRecording     Category = "recording"
	CategoryTranscription Category = "transcription"
	CategoryAnalysis      Category = "analysis"
)

// CategoryForType maps an operation type to its category. Generation calls
// share the analysis category because they contend for the same provider.
func CategoryForType(t Type) Category {
	switch t {
	case TypeRecording:
		return CategoryRecording
	case TypeTranscription:
		return CategoryTranscription
	default:
		return CategoryAnalysis
	}
}

// Status represents the lifecycle of a coordinated operation.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Operation is a tracked unit of background work. Once terminal it is
// immutable and retained only for reporting until reaped.
type Operation struct {
	ID            string
	Type          Type
	Category      Category
	GroupID       string
	MemoID        string
	Status        Status
	Progress      float64
	ProgressLabel string
	FailureReason string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Active reports whether the operation still counts against exclusivity
// rules, i.e. it has not reached a terminal state.
func (o Operation) Active() bool {
	return !o.Status.Terminal()
}

// Duration returns the running time for completed operations, zero otherwise.
func (o Operation) Duration() time.Duration {
	if o.StartedAt == nil || o.CompletedAt == nil {
		return 0
	}
	return o.CompletedAt.Sub(*o.StartedAt)
}

// Metrics aggregates coordinator state for observability.
type Metrics struct {
	Total           int
	Queued          int
	Running         int
	Completed       int
	Failed          int
	Cancelled       int
	Ceiling         int
	AverageDuration time.Duration
}
