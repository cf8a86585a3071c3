package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"murmur/internal/clock"
	"murmur/internal/services"
)

// ErrCompleted is returned when a caller re-enqueues a job that already
// completed. Regeneration requires deleting the job first; silently
// restarting finished work would be a caller bug.
var ErrCompleted = errors.New("job already completed")

// ErrInvalidTransition is returned when a transition is requested from a
// state that does not permit it. Callers log it loudly and carry on.
var ErrInvalidTransition = errors.New("invalid job transition")

// ErrNotFound is returned by transition methods when no job exists for the
// given memo and kind.
var ErrNotFound = errors.New("job not found")

const jobColumns = "memo_id, kind, mode, status, retry_count, last_error, failure_reason, next_retry_at, created_at, updated_at"

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    memo_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    mode TEXT,
    status TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    failure_reason TEXT,
    next_retry_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (memo_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Store persists generation jobs in SQLite.
type Store struct {
	db       *sql.DB
	path     string
	clk      clock.Clock
	onChange func(Job)
}

// StoreOption configures optional Store behavior.
type StoreOption func(*Store)

// WithClock injects the clock used for timestamps and due checks.
func WithClock(clk clock.Clock) StoreOption {
	return func(s *Store) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithChangePublisher registers a callback invoked after every persisted
// state transition. The daemon wires it to a jobs-changed event on the bus.
func WithChangePublisher(fn func(Job)) StoreOption {
	return func(s *Store) {
		s.onChange = fn
	}
}

// Open initializes or connects to the jobs database.
func Open(dbPath string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(jobsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create jobs schema: %w", err)
	}

	store := &Store{db: db, path: dbPath, clk: clock.System()}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue creates a queued job for the memo and kind if none exists, or
// re-queues an existing failed job without touching its retry count. Error
// fields are cleared on the way into queued, but the backoff window set by
// the failure stays so DueJobs keeps gating automatic retries. Re-enqueuing
// a completed job is refused with ErrCompleted; an already queued or
// processing job is returned unchanged.
func (s *Store) Enqueue(ctx context.Context, memoID string, kind Kind, mode string) (*Job, error) {
	existing, err := s.JobFor(ctx, memoID, kind)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()

	if existing == nil {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO jobs (memo_id, kind, mode, status, retry_count, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?)`,
			memoID,
			kind,
			nullableString(mode),
			StatusQueued,
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return nil, fmt.Errorf("insert job: %w", err)
		}
		return s.finishTransition(ctx, memoID, kind)
	}

	switch existing.Status {
	case StatusCompleted:
		return nil, fmt.Errorf("%w: %s/%s", ErrCompleted, memoID, kind)
	case StatusQueued, StatusProcessing:
		return existing, nil
	}

	// failed -> queued keeps retry_count; only processing -> failed may bump it.
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = NULL, failure_reason = NULL, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusQueued,
		formatTime(now),
		memoID,
		kind,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	return s.finishTransition(ctx, memoID, kind)
}

// RetryNow re-queues a failed job for immediate execution, clearing the
// backoff window. The CLI's manual retry path uses it; automatic retries go
// through Enqueue and respect the window.
func (s *Store) RetryNow(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = NULL, failure_reason = NULL, next_retry_at = NULL, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusQueued,
		formatTime(s.clk.Now()),
		memoID,
		kind,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}
	if err := s.requireTransition(ctx, res, memoID, kind, StatusQueued); err != nil {
		return nil, err
	}
	return s.finishTransition(ctx, memoID, kind)
}

// MarkProcessing transitions a queued job to processing and clears stale
// error fields.
func (s *Store) MarkProcessing(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	now := s.clk.Now()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = NULL, failure_reason = NULL, next_retry_at = NULL, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusProcessing,
		formatTime(now),
		memoID,
		kind,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if err := s.requireTransition(ctx, res, memoID, kind, StatusProcessing); err != nil {
		return nil, err
	}
	return s.finishTransition(ctx, memoID, kind)
}

// MarkFailed transitions a processing job to failed, increments the retry
// count by exactly one, records the failure classification, and schedules
// the next retry using the backoff policy seeded by the new retry count.
func (s *Store) MarkFailed(ctx context.Context, memoID string, kind Kind, reason services.FailureReason, message string, backoff Backoff) (*Job, error) {
	existing, err := s.JobFor(ctx, memoID, kind)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, memoID, kind)
	}
	if existing.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: %s/%s cannot fail from %s", ErrInvalidTransition, memoID, kind, existing.Status)
	}

	now := s.clk.Now()
	nextRetry := now.Add(backoff.Delay(existing.RetryCount + 1))
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, retry_count = retry_count + 1, last_error = ?, failure_reason = ?,
             next_retry_at = ?, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		string(reason),
		formatTime(nextRetry),
		formatTime(now),
		memoID,
		kind,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if err := s.requireTransition(ctx, res, memoID, kind, StatusFailed); err != nil {
		return nil, err
	}
	return s.finishTransition(ctx, memoID, kind)
}

// MarkCompleted transitions a processing job to its terminal completed state.
func (s *Store) MarkCompleted(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	now := s.clk.Now()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, next_retry_at = NULL, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusCompleted,
		formatTime(now),
		memoID,
		kind,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if err := s.requireTransition(ctx, res, memoID, kind, StatusCompleted); err != nil {
		return nil, err
	}
	return s.finishTransition(ctx, memoID, kind)
}

// JobFor fetches a job by memo and kind, nil when absent.
func (s *Store) JobFor(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE memo_id = ? AND kind = ?`,
		memoID,
		kind,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// AllJobs returns every persisted job ordered by creation time.
func (s *Store) AllJobs(ctx context.Context) ([]*Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at`)
}

// DueJobs returns queued jobs whose backoff window has elapsed at the given
// instant, oldest first.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.queryJobs(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at`,
		StatusQueued,
		formatTime(now),
	)
}

// RequeueProcessing returns a single claimed job to the queue, preserving
// its retry count. The runner uses it when shutdown interrupts a job between
// the processing claim and the generator call.
func (s *Store) RequeueProcessing(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = NULL, failure_reason = NULL, next_retry_at = NULL, updated_at = ?
         WHERE memo_id = ? AND kind = ? AND status = ?`,
		StatusQueued,
		formatTime(s.clk.Now()),
		memoID,
		kind,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue processing job: %w", err)
	}
	if err := s.requireTransition(ctx, res, memoID, kind, StatusQueued); err != nil {
		return nil, err
	}
	return s.finishTransition(ctx, memoID, kind)
}

// ResetStuckProcessing re-queues jobs left in processing by a previous
// process, preserving retry counts. Called once at daemon startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = NULL, failure_reason = NULL, next_retry_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		formatTime(s.clk.Now()),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteForMemo removes all jobs belonging to a memo.
func (s *Store) DeleteForMemo(ctx context.Context, memoID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE memo_id = ?`, memoID)
	if err != nil {
		return 0, fmt.Errorf("delete jobs for memo: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// requireTransition converts a zero-row guarded update into the precise
// error: not found, or invalid transition from the job's actual state.
func (s *Store) requireTransition(ctx context.Context, res sql.Result, memoID string, kind Kind, target Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	current, err := s.JobFor(ctx, memoID, kind)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, memoID, kind)
	}
	return fmt.Errorf("%w: %s/%s cannot move from %s to %s", ErrInvalidTransition, memoID, kind, current.Status, target)
}

func (s *Store) finishTransition(ctx context.Context, memoID string, kind Kind) (*Job, error) {
	job, err := s.JobFor(ctx, memoID, kind)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, memoID, kind)
	}
	if s.onChange != nil {
		s.onChange(*job)
	}
	return job, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		memoID        string
		kindStr       string
		mode          sql.NullString
		statusStr     string
		retryCount    int
		lastError     sql.NullString
		failureReason sql.NullString
		nextRetryRaw  sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&memoID,
		&kindStr,
		&mode,
		&statusStr,
		&retryCount,
		&lastError,
		&failureReason,
		&nextRetryRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		MemoID:     memoID,
		Kind:       Kind(kindStr),
		Mode:       mode.String,
		Status:     Status(statusStr),
		RetryCount: retryCount,
		LastError:  lastError.String,
	}
	if failureReason.Valid {
		if reason, ok := services.ParseFailureReason(failureReason.String); ok {
			job.FailureReason = reason
		}
	}
	if nextRetryRaw.Valid {
		if t, err := parseTimeString(nextRetryRaw.String); err == nil {
			job.NextRetryAt = &t
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

// formatTime normalizes to UTC before formatting so that DueJobs' lexical
// comparison against a UTC-formatted bound holds for any injected clock.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
