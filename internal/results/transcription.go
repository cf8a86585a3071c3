package results

import (
	"context"
	"time"
)

// TranscriptionState tracks where a memo's transcription stands.
type TranscriptionState string

const (
	TranscriptionNotStarted TranscriptionState = "notStarted"
	TranscriptionInProgress TranscriptionState = "inProgress"
	TranscriptionCompleted  TranscriptionState = "completed"
	TranscriptionFailed     TranscriptionState = "failed"
)

// Transcription is the persisted transcription result for a memo.
type Transcription struct {
	MemoID    string             `json:"memo_id"`
	State     TranscriptionState `json:"state"`
	Text      string             `json:"text,omitempty"`
	Language  string             `json:"language,omitempty"`
	ErrorHint string             `json:"error_hint,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TranscriptionRepository is the read-through cache for transcription
// results, keyed by memo ID. A memo nothing has ever transcribed reads as
// notStarted rather than an error, and the first such discovery is reported
// through the change publisher.
type TranscriptionRepository struct {
	*Repository[Transcription]

	publish    func(Change[Transcription])
	discovered map[string]struct{}
}

// NewTranscriptionRepository wires a transcription repository over the
// record store.
func NewTranscriptionRepository(store RecordStore, publish func(Change[Transcription])) *TranscriptionRepository {
	r := &TranscriptionRepository{
		publish:    publish,
		discovered: make(map[string]struct{}),
	}
	r.Repository = NewRepository[Transcription](store, "transcription", publish)
	return r
}

// Get returns the transcription for a memo. A miss in both tiers yields a
// synthesized notStarted value without creating a cache entry; the first
// miss per memo is published as a state discovery.
func (r *TranscriptionRepository) Get(ctx context.Context, memoID string) (Transcription, error) {
	value, found, err := r.Repository.Get(ctx, memoID)
	if err != nil {
		return Transcription{}, err
	}
	if found {
		return value, nil
	}

	absent := Transcription{MemoID: memoID, State: TranscriptionNotStarted}

	r.mu.Lock()
	_, seen := r.discovered[memoID]
	if !seen {
		r.discovered[memoID] = struct{}{}
	}
	r.mu.Unlock()

	if !seen && r.publish != nil {
		r.publish(Change[Transcription]{Key: memoID, Current: &absent})
	}
	return absent, nil
}

// State is a convenience projection of Get.
func (r *TranscriptionRepository) State(ctx context.Context, memoID string) (TranscriptionState, error) {
	value, err := r.Get(ctx, memoID)
	if err != nil {
		return "", err
	}
	return value.State, nil
}
