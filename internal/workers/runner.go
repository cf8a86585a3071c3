package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/clock"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/operations"
	"murmur/internal/services"
)

// requeueTimeout bounds the release of a claimed job during shutdown, when
// the runner's own context is already cancelled.
const requeueTimeout = 5 * time.Second

// Generator produces the content for one job kind and persists its result.
type Generator interface {
	Generate(ctx context.Context, job jobs.Job) error
}

// RunnerOption configures optional Runner behavior.
type RunnerOption func(*Runner)

// WithBackoff overrides the retry backoff policy.
func WithBackoff(b jobs.Backoff) RunnerOption {
	return func(r *Runner) { r.backoff = b }
}

// WithMaxRetries sets the automatic re-enqueue ceiling. Zero disables it.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) { r.maxRetries = n }
}

// WithPollInterval sets how often the runner looks for due jobs.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithErrorRetryInterval sets the wait after a store error.
func WithErrorRetryInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.errorRetryInterval = d
		}
	}
}

// WithRunnerClock injects the clock used for due checks.
func WithRunnerClock(clk clock.Clock) RunnerOption {
	return func(r *Runner) {
		if clk != nil {
			r.clk = clk
		}
	}
}

// Runner drains due generation jobs: queued -> processing -> generator call
// -> completed, or failed with backoff. Failures with a retryable reason are
// re-enqueued automatically until the retry ceiling; validation failures and
// exhausted jobs stay failed for a manual retry.
type Runner struct {
	store       *jobs.Store
	coordinator *operations.Coordinator
	generators  map[jobs.Kind]Generator
	clk         clock.Clock
	logger      *slog.Logger

	backoff            jobs.Backoff
	maxRetries         int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner wires a job runner over the store and coordinator.
func NewRunner(
	store *jobs.Store,
	coordinator *operations.Coordinator,
	generators map[jobs.Kind]Generator,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		store:              store,
		coordinator:        coordinator,
		generators:         generators,
		clk:                clock.System(),
		logger:             logger,
		backoff:            jobs.DefaultBackoff(),
		maxRetries:         5,
		pollInterval:       2 * time.Second,
		errorRetryInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins background processing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("job runner already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		due, err := r.store.DueJobs(ctx, r.clk.Now())
		if err != nil {
			r.logger.Warn("fetch due jobs failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check jobs database access"),
			)
			r.waitOrShutdown(ctx, r.errorRetryInterval)
			continue
		}
		if len(due) == 0 {
			r.waitOrShutdown(ctx, r.pollInterval)
			continue
		}

		for _, job := range due {
			if ctx.Err() != nil {
				return
			}
			r.runJob(ctx, *job)
		}
	}
}

func (r *Runner) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// RunDueOnce drains the currently due jobs synchronously. The CLI's manual
// retry path and tests use it instead of the poll loop.
func (r *Runner) RunDueOnce(ctx context.Context) error {
	due, err := r.store.DueJobs(ctx, r.clk.Now())
	if err != nil {
		return err
	}
	for _, job := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.runJob(ctx, *job)
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, job jobs.Job) {
	ctx = services.WithMemoID(ctx, job.MemoID)
	ctx = services.WithWorker(ctx, "runner")
	logger := logging.WithContext(ctx, r.logger).With(
		logging.String(logging.FieldJobKind, string(job.Kind)),
	)

	generator, ok := r.generators[job.Kind]
	if !ok {
		logger.Error("no generator registered for job kind")
		return
	}

	opID, admitted := r.coordinator.Register(operationType(job.Kind), job.MemoID)
	if !admitted {
		// Exclusivity refusal; the job stays queued for the next poll.
		logger.Debug("generation deferred by coordinator")
		return
	}

	if _, err := r.store.MarkProcessing(ctx, job.MemoID, job.Kind); err != nil {
		r.coordinator.Cancel(opID)
		logger.Error("mark job processing", logging.Error(err))
		return
	}

	if err := r.waitForStart(ctx, opID); err != nil {
		r.coordinator.Cancel(opID)
		// Processing was claimed; release it even though ctx is already gone.
		requeueCtx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
		defer cancel()
		if _, requeueErr := r.store.RequeueProcessing(requeueCtx, job.MemoID, job.Kind); requeueErr != nil {
			logger.Error("requeue interrupted job", logging.Error(requeueErr))
		}
		return
	}

	err := generator.Generate(ctx, job)
	if err == nil {
		if _, markErr := r.store.MarkCompleted(ctx, job.MemoID, job.Kind); markErr != nil {
			logger.Error("mark job completed", logging.Error(markErr))
		}
		r.coordinator.Complete(opID)
		logger.Info("generation job completed")
		return
	}

	reason := services.ClassifyFailure(err)
	failed, markErr := r.store.MarkFailed(ctx, job.MemoID, job.Kind, reason, err.Error(), r.backoff)
	if markErr != nil {
		logger.Error("mark job failed", logging.Error(markErr))
		r.coordinator.Fail(opID, string(reason))
		return
	}
	r.coordinator.Fail(opID, string(reason))
	logger.Warn("generation job failed",
		logging.String(logging.FieldErrorHint, string(reason)),
		logging.Int("retry_count", failed.RetryCount),
		logging.Error(err),
	)

	if reason.Retryable() && !failed.ExhaustedRetries(r.maxRetries) {
		if _, enqErr := r.store.Enqueue(ctx, job.MemoID, job.Kind, job.Mode); enqErr != nil {
			logger.Error("re-enqueue failed job", logging.Error(enqErr))
		}
	}
}

// waitForStart polls until the coordinator's running ceiling admits the
// operation.
func (r *Runner) waitForStart(ctx context.Context, opID string) error {
	for {
		if r.coordinator.Start(opID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startPollInterval):
		}
	}
}

func operationType(kind jobs.Kind) operations.Type {
	if kind == jobs.KindDistill {
		return operations.TypeDistillGeneration
	}
	return operations.TypeTitleGeneration
}
