package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/events"
	"murmur/internal/logging"
	"murmur/internal/operations"
	"murmur/internal/results"
	"murmur/internal/services"
	"murmur/internal/transcribe"
)

// Engine is the speech-to-text backend. Transcribe reports progress through
// the callback and must observe context cancellation; Unload releases the
// loaded model from memory.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, progress func(fraction float64, stage string)) (transcribe.Transcript, error)
	Unload()
}

const startPollInterval = 200 * time.Millisecond

// Transcriber runs transcription work under coordinator supervision: it
// registers the operation, waits out the concurrency ceiling, streams
// progress, and persists the result.
type Transcriber struct {
	coordinator *operations.Coordinator
	repo        *results.TranscriptionRepository
	bus         *events.Bus
	engine      Engine
	logger      *slog.Logger
}

// NewTranscriber wires a transcription worker.
func NewTranscriber(
	coordinator *operations.Coordinator,
	repo *results.TranscriptionRepository,
	bus *events.Bus,
	engine Engine,
	logger *slog.Logger,
) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{
		coordinator: coordinator,
		repo:        repo,
		bus:         bus,
		engine:      engine,
		logger:      logger,
	}
}

// Transcribe runs the full transcription path for one memo. A registration
// refusal (recording still active) is a normal outcome surfaced as a
// validation error the caller can retry later.
func (t *Transcriber) Transcribe(ctx context.Context, memoID, audioPath string) error {
	opID, ok := t.coordinator.Register(operations.TypeTranscription, memoID)
	if !ok {
		return services.Wrap(services.ErrValidation, "transcriber", "register",
			fmt.Sprintf("transcription refused for memo %s", memoID), nil)
	}

	if err := t.waitForStart(ctx, opID); err != nil {
		t.coordinator.Cancel(opID)
		return err
	}

	logger := t.logger.With(
		logging.String(logging.FieldMemoID, memoID),
		logging.String(logging.FieldOperationID, opID),
	)
	logger.Info("transcription started")

	if err := t.repo.Save(ctx, memoID, results.Transcription{
		MemoID: memoID,
		State:  results.TranscriptionInProgress,
	}); err != nil {
		t.coordinator.Fail(opID, string(services.ClassifyFailure(err)))
		return err
	}

	transcript, err := t.engine.Transcribe(ctx, audioPath, func(fraction float64, stage string) {
		t.coordinator.UpdateProgress(opID, fraction, stage)
		t.bus.Publish(events.TranscriptionProgress{MemoID: memoID, Fraction: fraction, Stage: stage})
	})
	if err != nil {
		reason := services.ClassifyFailure(err)
		t.coordinator.Fail(opID, string(reason))
		if saveErr := t.repo.Save(ctx, memoID, results.Transcription{
			MemoID:    memoID,
			State:     results.TranscriptionFailed,
			ErrorHint: err.Error(),
		}); saveErr != nil {
			logger.Error("persist failed transcription state", logging.Error(saveErr))
		}
		logger.Error("transcription failed",
			logging.String(logging.FieldErrorHint, string(reason)),
			logging.Error(err),
		)
		return err
	}

	if err := t.repo.Save(ctx, memoID, results.Transcription{
		MemoID:   memoID,
		State:    results.TranscriptionCompleted,
		Text:     transcript.Text,
		Language: transcript.Language,
	}); err != nil {
		t.coordinator.Fail(opID, string(services.ClassifyFailure(err)))
		return err
	}

	t.coordinator.Complete(opID)
	t.bus.Publish(events.TranscriptionCompleted{MemoID: memoID, Text: transcript.Text})
	logger.Info("transcription completed")
	return nil
}

// waitForStart polls the coordinator until the operation leaves the queue.
// The ceiling drains as running operations finish; cancellation aborts the
// wait.
func (t *Transcriber) waitForStart(ctx context.Context, opID string) error {
	for {
		if t.coordinator.Start(opID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startPollInterval):
		}
	}
}

// UnloadModel releases the engine's loaded model.
func (t *Transcriber) UnloadModel() {
	t.engine.Unload()
}
