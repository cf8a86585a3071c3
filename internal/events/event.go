package events

// Kind identifies an event variant.
type Kind string

const (
	KindMemoCreated            Kind = "memo_created"
	KindMemoDeleted            Kind = "memo_deleted"
	KindRecordingStarted       Kind = "recording_started"
	KindRecordingCompleted     Kind = "recording_completed"
	KindTranscriptionProgress  Kind = "transcription_progress"
	KindTranscriptionCompleted Kind = "transcription_completed"
	KindAnalysisCompleted      Kind = "analysis_completed"
	KindResultStateChanged     Kind = "result_state_changed"
	KindJobsChanged            Kind = "jobs_changed"
	KindPermissionChanged      Kind = "permission_changed"
	KindNavigateOpenMemo       Kind = "navigate_open_memo"
	KindOperationRegistered    Kind = "operation_registered"
	KindOperationStarted       Kind = "operation_started"
	KindOperationProgress      Kind = "operation_progress"
	KindOperationCompleted     Kind = "operation_completed"
	KindOperationFailed        Kind = "operation_failed"
	KindOperationCancelled     Kind = "operation_cancelled"
)

// Category groups event kinds by the subsystem they describe.
type Category string

const (
	CategoryMemo          Category = "memo"
	CategoryRecording     Category = "recording"
	CategoryTranscription Category = "transcription"
	CategoryAnalysis      Category = "analysis"
	CategoryOperation     Category = "operation"
	CategorySystem        Category = "system"
)

// Event is the closed union of domain occurrences delivered through the Bus.
// Concrete variants are immutable value types carrying only their own payload.
type Event interface {
	EventKind() Kind
}

// MemoCreated fires when a new memo record has been created.
type MemoCreated struct {
	MemoID    string
	AudioPath string
	Title     string
}

// MemoDeleted fires after a memo and its derived results are removed.
type MemoDeleted struct {
	MemoID string
}

// RecordingStarted fires when a recording operation begins for a memo.
type RecordingStarted struct {
	MemoID string
}

// RecordingCompleted fires when a recording operation finishes.
type RecordingCompleted struct {
	MemoID          string
	DurationSeconds float64
}

// TranscriptionProgress reports partial transcription progress for a memo.
type TranscriptionProgress struct {
	MemoID   string
	Fraction float64
	Stage    string
}

// TranscriptionCompleted fires once a memo's transcript has been persisted.
type TranscriptionCompleted struct {
	MemoID string
	Text   string
}

// AnalysisCompleted fires once an analysis result has been persisted.
type AnalysisCompleted struct {
	MemoID string
	Mode   string
}

// ResultStateChanged reports a repository state transition for a memo's
// cached result, including first-time discovery of the absent state.
type ResultStateChanged struct {
	MemoID   string
	Key      string
	Previous string
	Current  string
}

// JobsChanged fires whenever a background job transitions state. Error is
// set only when the transition was into failed.
type JobsChanged struct {
	MemoID string
	Kind   string
	Status string
	Error  string
}

// PermissionChanged reports a platform permission grant or revocation.
type PermissionChanged struct {
	Permission string
	Granted    bool
}

// NavigateOpenMemo asks the UI layer to open a specific memo.
type NavigateOpenMemo struct {
	MemoID string
}

// OperationRegistered fires when the coordinator admits a new operation.
type OperationRegistered struct {
	OperationID string
	MemoID      string
	Type        string
}

// OperationStarted fires on the queued to running transition.
type OperationStarted struct {
	OperationID string
	MemoID      string
	Type        string
}

// OperationProgress reports throttled progress for a running operation.
type OperationProgress struct {
	OperationID string
	MemoID      string
	Type        string
	Fraction    float64
	Label       string
}

// OperationCompleted fires on successful terminal transition.
type OperationCompleted struct {
	OperationID string
	MemoID      string
	Type        string
}

// OperationFailed fires on the failed terminal transition.
type OperationFailed struct {
	OperationID string
	MemoID      string
	Type        string
	Reason      string
}

// OperationCancelled fires on the cancelled terminal transition.
type OperationCancelled struct {
	OperationID string
	MemoID      string
	Type        string
}

func (MemoCreated) EventKind() Kind            { return KindMemoCreated }
func (MemoDeleted) EventKind() Kind            { return KindMemoDeleted }
func (RecordingStarted) EventKind() Kind       { return KindRecordingStarted }
func (RecordingCompleted) EventKind() Kind     { return KindRecordingCompleted }
func (TranscriptionProgress) EventKind() Kind  { return KindTranscriptionProgress }
func (TranscriptionCompleted) EventKind() Kind { return KindTranscriptionCompleted }
func (AnalysisCompleted) EventKind() Kind      { return KindAnalysisCompleted }
func (ResultStateChanged) EventKind() Kind     { return KindResultStateChanged }
func (JobsChanged) EventKind() Kind            { return KindJobsChanged }
func (PermissionChanged) EventKind() Kind      { return KindPermissionChanged }
func (NavigateOpenMemo) EventKind() Kind       { return KindNavigateOpenMemo }
func (OperationRegistered) EventKind() Kind    { return KindOperationRegistered }
func (OperationStarted) EventKind() Kind       { return KindOperationStarted }
func (OperationProgress) EventKind() Kind      { return KindOperationProgress }
func (OperationCompleted) EventKind() Kind     { return KindOperationCompleted }
func (OperationFailed) EventKind() Kind        { return KindOperationFailed }
func (OperationCancelled) EventKind() Kind     { return KindOperationCancelled }

// SubjectID returns the memo identifier an event concerns, when it has one.
// Derived, never stored redundantly on the variants that lack a memo.
func SubjectID(e Event) (string, bool) {
	switch ev := e.(type) {
	case MemoCreated:
		return ev.MemoID, true
	case MemoDeleted:
		return ev.MemoID, true
	case RecordingStarted:
		return ev.MemoID, true
	case RecordingCompleted:
		return ev.MemoID, true
	case TranscriptionProgress:
		return ev.MemoID, true
	case TranscriptionCompleted:
		return ev.MemoID, true
	case AnalysisCompleted:
		return ev.MemoID, true
	case ResultStateChanged:
		return ev.MemoID, true
	case JobsChanged:
		return ev.MemoID, true
	case NavigateOpenMemo:
		return ev.MemoID, true
	case OperationRegistered:
		return ev.MemoID, ev.MemoID != ""
	case OperationStarted:
		return ev.MemoID, ev.MemoID != ""
	case OperationProgress:
		return ev.MemoID, ev.MemoID != ""
	case OperationCompleted:
		return ev.MemoID, ev.MemoID != ""
	case OperationFailed:
		return ev.MemoID, ev.MemoID != ""
	case OperationCancelled:
		return ev.MemoID, ev.MemoID != ""
	case PermissionChanged:
		return "", false
	default:
		return "", false
	}
}

// CategoryOf maps an event variant to its subsystem category.
func CategoryOf(e Event) Category {
	switch e.(type) {
	case MemoCreated, MemoDeleted, NavigateOpenMemo:
		return CategoryMemo
	case RecordingStarted, RecordingCompleted:
		return CategoryRecording
	case TranscriptionProgress, TranscriptionCompleted:
		return CategoryTranscription
	case AnalysisCompleted, ResultStateChanged:
		return CategoryAnalysis
	case OperationRegistered, OperationStarted, OperationProgress,
		OperationCompleted, OperationFailed, OperationCancelled:
		return CategoryOperation
	default:
		return CategorySystem
	}
}
