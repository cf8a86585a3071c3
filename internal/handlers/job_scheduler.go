package handlers

import (
	"context"
	"errors"
	"log/slog"

	"murmur/internal/events"
	"murmur/internal/jobs"
	"murmur/internal/logging"
)

// JobEnqueuer is the slice of the job store the scheduler needs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, memoID string, kind jobs.Kind, mode string) (*jobs.Job, error)
}

// JobScheduler enqueues the auto-title and auto-distill jobs once a memo's
// transcript lands.
type JobScheduler struct {
	bus    *events.Bus
	store  JobEnqueuer
	logger *slog.Logger
	owner  *events.Owner
}

// NewJobScheduler wires the scheduler over the shared bus.
func NewJobScheduler(bus *events.Bus, store JobEnqueuer, logger *slog.Logger) *JobScheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JobScheduler{bus: bus, store: store, logger: logger}
}

func (s *JobScheduler) Kind() Kind { return KindJobScheduler }

// Start subscribes to transcription-completed events.
func (s *JobScheduler) Start(ctx context.Context) error {
	s.owner = events.NewOwner()
	s.bus.Subscribe(s.owner, func(e events.Event) {
		completed, ok := e.(events.TranscriptionCompleted)
		if !ok {
			return
		}
		s.schedule(ctx, completed.MemoID)
	}, events.KindTranscriptionCompleted)
	return nil
}

func (s *JobScheduler) schedule(ctx context.Context, memoID string) {
	plans := []struct {
		kind jobs.Kind
		mode string
	}{
		{jobs.KindTitle, ""},
		{jobs.KindDistill, "distill"},
	}
	for _, plan := range plans {
		if _, err := s.store.Enqueue(ctx, memoID, plan.kind, plan.mode); err != nil {
			// A re-transcribed memo may already have finished generation.
			if errors.Is(err, jobs.ErrCompleted) {
				continue
			}
			s.logger.Error("enqueue generation job",
				logging.String(logging.FieldMemoID, memoID),
				logging.String(logging.FieldJobKind, string(plan.kind)),
				logging.Error(err),
			)
		}
	}
}

// Stop releases the bus subscription.
func (s *JobScheduler) Stop() {
	if s.owner != nil {
		s.owner.Close()
	}
}
