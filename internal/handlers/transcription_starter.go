package handlers

import (
	"context"
	"log/slog"

	"murmur/internal/events"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// TranscriptionRunner starts transcription work for a memo. The worker owns
// coordinator registration and result persistence; the handler only reacts
// to the memo-created event.
type TranscriptionRunner interface {
	Transcribe(ctx context.Context, memoID, audioPath string) error
}

// TranscriptionStarter kicks off transcription whenever a memo is created.
type TranscriptionStarter struct {
	bus    *events.Bus
	runner TranscriptionRunner
	logger *slog.Logger
	owner  *events.Owner
}

// NewTranscriptionStarter wires the handler over the shared bus.
func NewTranscriptionStarter(bus *events.Bus, runner TranscriptionRunner, logger *slog.Logger) *TranscriptionStarter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TranscriptionStarter{bus: bus, runner: runner, logger: logger}
}

func (s *TranscriptionStarter) Kind() Kind { return KindTranscriptionStarter }

// Start subscribes to memo-created events. Delivery is synchronous in the
// publisher, so the actual transcription run moves to its own goroutine.
func (s *TranscriptionStarter) Start(ctx context.Context) error {
	s.owner = events.NewOwner()
	s.bus.Subscribe(s.owner, func(e events.Event) {
		created, ok := e.(events.MemoCreated)
		if !ok {
			return
		}
		go s.run(ctx, created)
	}, events.KindMemoCreated)
	return nil
}

func (s *TranscriptionStarter) run(ctx context.Context, created events.MemoCreated) {
	ctx = services.WithMemoID(ctx, created.MemoID)
	ctx = services.WithWorker(ctx, "transcriber")
	if err := s.runner.Transcribe(ctx, created.MemoID, created.AudioPath); err != nil {
		logging.WithContext(ctx, s.logger).Error("transcription failed", logging.Error(err))
	}
}

// Stop releases the bus subscription.
func (s *TranscriptionStarter) Stop() {
	if s.owner != nil {
		s.owner.Close()
	}
}
