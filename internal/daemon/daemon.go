package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"murmur/internal/clock"
	"murmur/internal/config"
	"murmur/internal/events"
	"murmur/internal/handlers"
	"murmur/internal/jobs"
	"murmur/internal/llm"
	"murmur/internal/logging"
	"murmur/internal/memos"
	"murmur/internal/notifications"
	"murmur/internal/operations"
	"murmur/internal/preflight"
	"murmur/internal/results"
	"murmur/internal/transcribe"
	"murmur/internal/workers"
)

// Daemon owns the full processing pipeline and enforces single-instance
// execution. One bus and one coordinator are shared by every component.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus         *events.Bus
	coordinator *operations.Coordinator

	memoStore      *memos.Store
	jobStore       *jobs.Store
	recordStore    *results.SQLiteStore
	transcriptions *results.TranscriptionRepository
	analyses       *results.AnalysisRepository

	transcriber *workers.Transcriber
	runner      *workers.Runner
	registry    *handlers.Registry
	watcher     *Watcher
	notify      notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Option configures optional daemon wiring.
type Option func(*builder)

type builder struct {
	clk    clock.Clock
	engine workers.Engine
}

// WithClock injects the clock shared by every component (primarily for tests).
func WithClock(clk clock.Clock) Option {
	return func(b *builder) {
		if clk != nil {
			b.clk = clk
		}
	}
}

// WithEngine overrides the speech-to-text engine (primarily for tests).
func WithEngine(engine workers.Engine) Option {
	return func(b *builder) {
		if engine != nil {
			b.engine = engine
		}
	}
}

// New constructs a daemon with all components wired but not yet started.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	b := &builder{clk: clock.System()}
	for _, opt := range opts {
		opt(b)
	}
	if b.engine == nil {
		engine, err := transcribe.New(cfg.Transcription)
		if err != nil {
			return nil, fmt.Errorf("transcription engine: %w", err)
		}
		b.engine = engine
	}

	bus := events.NewBus(b.clk, logger,
		events.WithCleanupInterval(time.Duration(cfg.Events.CleanupIntervalSeconds)*time.Second),
		events.WithCleanupThreshold(cfg.Events.CleanupThreshold),
	)
	coordinator := operations.NewCoordinator(bus, b.clk, logger,
		operations.WithMaxRunning(cfg.Coordinator.MaxRunning),
		operations.WithRetention(time.Duration(cfg.Coordinator.RetentionSeconds)*time.Second),
		operations.WithProgressBucket(cfg.Coordinator.ProgressBucketPercent),
	)

	dbPath := cfg.DatabasePath()
	memoStore, err := memos.Open(dbPath, memos.WithClock(b.clk))
	if err != nil {
		return nil, fmt.Errorf("open memo store: %w", err)
	}
	jobStore, err := jobs.Open(dbPath,
		jobs.WithClock(b.clk),
		jobs.WithChangePublisher(func(job jobs.Job) {
			ev := events.JobsChanged{
				MemoID: job.MemoID,
				Kind:   string(job.Kind),
				Status: string(job.Status),
			}
			if job.Status == jobs.StatusFailed {
				ev.Error = job.LastError
			}
			bus.Publish(ev)
		}),
	)
	if err != nil {
		_ = memoStore.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}
	recordStore, err := results.OpenSQLiteStore(dbPath, results.WithStoreClock(b.clk))
	if err != nil {
		_ = jobStore.Close()
		_ = memoStore.Close()
		return nil, fmt.Errorf("open record store: %w", err)
	}

	transcriptions := results.NewTranscriptionRepository(recordStore, func(ch results.Change[results.Transcription]) {
		bus.Publish(events.ResultStateChanged{
			MemoID:   ch.Key,
			Key:      "transcription",
			Previous: transcriptionState(ch.Previous),
			Current:  transcriptionState(ch.Current),
		})
	})
	analyses := results.NewAnalysisRepository(recordStore, nil)

	transcriber := workers.NewTranscriber(coordinator, transcriptions, bus, b.engine, logger)
	llmClient := llm.NewClient(cfg.LLM)
	titler := workers.NewTitler(transcriptions, memoStore, llmClient, bus, logger)
	distiller := workers.NewDistiller(transcriptions, analyses, llmClient, bus, b.clk, cfg.LLM.Model, logger)
	runner := workers.NewRunner(jobStore, coordinator,
		map[jobs.Kind]workers.Generator{
			jobs.KindTitle:   titler,
			jobs.KindDistill: distiller,
		},
		logger,
		workers.WithBackoff(jobs.Backoff{
			Base: time.Duration(cfg.Jobs.BackoffBaseSeconds) * time.Second,
			Max:  time.Duration(cfg.Jobs.BackoffMaxSeconds) * time.Second,
		}),
		workers.WithMaxRetries(cfg.Jobs.MaxRetries),
		workers.WithPollInterval(time.Duration(cfg.Jobs.PollInterval)*time.Second),
		workers.WithErrorRetryInterval(time.Duration(cfg.Jobs.ErrorRetryInterval)*time.Second),
		workers.WithRunnerClock(b.clk),
	)

	notify := notifications.NewService(cfg)
	registry := handlers.NewRegistry(logger)
	for _, h := range []handlers.Handler{
		handlers.NewTranscriptionStarter(bus, transcriber, logger),
		handlers.NewJobScheduler(bus, jobStore, logger),
		handlers.NewModelUnloader(bus, transcriber, time.Duration(cfg.Transcription.UnloadAfterSeconds)*time.Second, logger),
		handlers.NewNotifier(bus, notify, memoStore, logger),
	} {
		if err := registry.Register(h); err != nil {
			_ = recordStore.Close()
			_ = jobStore.Close()
			_ = memoStore.Close()
			return nil, fmt.Errorf("register handler: %w", err)
		}
	}

	watcher := NewWatcher(cfg.Paths.InboxDir, memoStore, bus, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "murmurd.lock")
	return &Daemon{
		cfg:            cfg,
		logger:         logger,
		bus:            bus,
		coordinator:    coordinator,
		memoStore:      memoStore,
		jobStore:       jobStore,
		recordStore:    recordStore,
		transcriptions: transcriptions,
		analyses:       analyses,
		transcriber:    transcriber,
		runner:         runner,
		registry:       registry,
		watcher:        watcher,
		notify:         notify,
		lockPath:       lockPath,
		lock:           flock.New(lockPath),
	}, nil
}

// Start runs preflight checks, acquires the instance lock, reloads jobs left
// over from a previous run, and launches the handlers, job runner, and inbox
// watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	checks := preflight.RunAll(ctx, d.cfg)
	if !preflight.AllPassed(checks) {
		return fmt.Errorf("preflight failed: %s", describeFailures(checks))
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	requeued, err := d.jobStore.ResetStuckProcessing(runCtx)
	if err != nil {
		d.shutdown()
		return fmt.Errorf("reload interrupted jobs: %w", err)
	}
	if requeued > 0 {
		d.logger.Info("requeued interrupted jobs", logging.Int64("count", requeued))
	}

	if err := d.registry.StartAll(runCtx); err != nil {
		d.shutdown()
		return fmt.Errorf("start handlers: %w", err)
	}
	if err := d.runner.Start(runCtx); err != nil {
		d.registry.StopAll()
		d.shutdown()
		return fmt.Errorf("start job runner: %w", err)
	}
	if err := d.watcher.Start(runCtx); err != nil {
		d.runner.Stop()
		d.registry.StopAll()
		d.shutdown()
		return fmt.Errorf("start inbox watcher: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.String("inbox", d.cfg.Paths.InboxDir),
	)
	return nil
}

// Stop halts components in reverse start order and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.watcher.Stop()
	d.runner.Stop()
	d.registry.StopAll()
	d.shutdown()
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

func (d *Daemon) shutdown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes its stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.recordStore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.jobStore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.memoStore.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Status is a point-in-time summary for reporting.
type Status struct {
	Running      bool
	MemoCount    int
	JobCounts    map[jobs.Status]int
	Operations   operations.Metrics
	DatabasePath string
	LockFilePath string
}

// Status reports the daemon's current state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	memoCount, err := d.memoStore.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count memos: %w", err)
	}
	jobCounts, err := d.jobStore.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("job stats: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		MemoCount:    memoCount,
		JobCounts:    jobCounts,
		Operations:   d.coordinator.SystemMetrics(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}, nil
}

// Bus exposes the shared event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Memos exposes the memo store.
func (d *Daemon) Memos() *memos.Store { return d.memoStore }

// Jobs exposes the job store.
func (d *Daemon) Jobs() *jobs.Store { return d.jobStore }

// Transcriptions exposes the transcription repository.
func (d *Daemon) Transcriptions() *results.TranscriptionRepository { return d.transcriptions }

// Analyses exposes the analysis repository.
func (d *Daemon) Analyses() *results.AnalysisRepository { return d.analyses }

// Notifications exposes the notification service.
func (d *Daemon) Notifications() notifications.Service { return d.notify }

func transcriptionState(t *results.Transcription) string {
	if t == nil {
		return ""
	}
	return string(t.State)
}

func describeFailures(checks []preflight.Result) string {
	var failed []string
	for _, check := range checks {
		if check.Passed {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s (%s)", check.Name, check.Detail))
	}
	return strings.Join(failed, "; ")
}
