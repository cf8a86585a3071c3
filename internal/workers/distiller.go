package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"murmur/internal/clock"
	"murmur/internal/events"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/results"
	"murmur/internal/services"
)

const distillSystemPrompt = "You distill voice memos. Reply with the essential content of the transcript as a few tight bullet points, keeping any dates, names, and action items."

// Distiller generates a distilled summary of a memo's transcript.
type Distiller struct {
	transcripts *results.TranscriptionRepository
	analyses    *results.AnalysisRepository
	llm         LLMClient
	bus         *events.Bus
	clk         clock.Clock
	model       string
	logger      *slog.Logger
}

// NewDistiller wires the auto-distill generator.
func NewDistiller(
	transcripts *results.TranscriptionRepository,
	analyses *results.AnalysisRepository,
	llm LLMClient,
	bus *events.Bus,
	clk clock.Clock,
	model string,
	logger *slog.Logger,
) *Distiller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Distiller{
		transcripts: transcripts,
		analyses:    analyses,
		llm:         llm,
		bus:         bus,
		clk:         clk,
		model:       model,
		logger:      logger,
	}
}

// Generate produces and persists the distilled result for the job's memo.
func (d *Distiller) Generate(ctx context.Context, job jobs.Job) error {
	transcript, err := d.transcripts.Get(ctx, job.MemoID)
	if err != nil {
		return err
	}
	if transcript.State != results.TranscriptionCompleted {
		return services.Wrap(services.ErrValidation, "distiller", "generate",
			fmt.Sprintf("memo %s has no completed transcript", job.MemoID), nil)
	}

	raw, err := d.llm.Generate(ctx, distillSystemPrompt, transcript.Text)
	if err != nil {
		return fmt.Errorf("distill generation: %w", err)
	}
	content := strings.TrimSpace(raw)
	if content == "" {
		return services.Wrap(services.ErrValidation, "distiller", "generate", "model returned empty content", nil)
	}

	mode := job.Mode
	if mode == "" {
		mode = "distill"
	}
	if err := d.analyses.Save(ctx, results.Analysis{
		MemoID:    job.MemoID,
		Mode:      mode,
		Content:   content,
		Model:     d.model,
		CreatedAt: d.clk.Now(),
	}); err != nil {
		return err
	}

	d.bus.Publish(events.AnalysisCompleted{MemoID: job.MemoID, Mode: mode})
	d.logger.Info("memo distilled",
		logging.String(logging.FieldMemoID, job.MemoID),
		logging.String("mode", mode),
	)
	return nil
}
