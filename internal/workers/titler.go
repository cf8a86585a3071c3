package workers

import (
	"context"
	"fmt"
	"log/slog"

	"murmur/internal/events"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/memos"
	"murmur/internal/results"
	"murmur/internal/services"
)

// LLMClient generates text from a prompt.
type LLMClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const titleSystemPrompt = "You title voice memos. Reply with a short descriptive title, at most eight words, no quotes, no trailing punctuation."

// Titler generates a memo title from its transcript.
type Titler struct {
	transcripts *results.TranscriptionRepository
	memoStore   *memos.Store
	llm         LLMClient
	bus         *events.Bus
	logger      *slog.Logger
}

// NewTitler wires the auto-title generator.
func NewTitler(
	transcripts *results.TranscriptionRepository,
	memoStore *memos.Store,
	llm LLMClient,
	bus *events.Bus,
	logger *slog.Logger,
) *Titler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Titler{
		transcripts: transcripts,
		memoStore:   memoStore,
		llm:         llm,
		bus:         bus,
		logger:      logger,
	}
}

// Generate produces and persists a title for the job's memo.
func (t *Titler) Generate(ctx context.Context, job jobs.Job) error {
	transcript, err := t.transcripts.Get(ctx, job.MemoID)
	if err != nil {
		return err
	}
	if transcript.State != results.TranscriptionCompleted {
		return services.Wrap(services.ErrValidation, "titler", "generate",
			fmt.Sprintf("memo %s has no completed transcript", job.MemoID), nil)
	}

	raw, err := t.llm.Generate(ctx, titleSystemPrompt, transcript.Text)
	if err != nil {
		return fmt.Errorf("title generation: %w", err)
	}

	title := NormalizeTitle(raw)
	if title == "" {
		return services.Wrap(services.ErrValidation, "titler", "generate", "model returned an empty title", nil)
	}

	if err := t.memoStore.UpdateTitle(ctx, job.MemoID, title); err != nil {
		return err
	}
	t.bus.Publish(events.AnalysisCompleted{MemoID: job.MemoID, Mode: "title"})
	t.logger.Info("memo titled",
		logging.String(logging.FieldMemoID, job.MemoID),
		logging.String("title", title),
	)
	return nil
}
