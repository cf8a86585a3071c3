package memos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"murmur/internal/clock"
)

// ErrNotFound is returned when no memo exists for the given ID.
var ErrNotFound = errors.New("memo not found")

// Memo is a recorded voice memo tracked by the daemon.
type Memo struct {
	ID              string
	Title           string
	AudioPath       string
	DurationSeconds float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const memoColumns = "id, title, audio_path, duration_seconds, created_at, updated_at"

const memosSchema = `
CREATE TABLE IF NOT EXISTS memos (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    audio_path TEXT NOT NULL UNIQUE,
    duration_seconds REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Store persists memos in SQLite.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// StoreOption configures optional Store behavior.
type StoreOption func(*Store)

// WithClock injects the clock used for timestamps.
func WithClock(clk clock.Clock) StoreOption {
	return func(s *Store) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// Open initializes or connects to the memos database.
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

	if _, err := db.Exec(memosSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create memos schema: %w", err)
	}

	store := &Store{db: db, clk: clock.System()}
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

// Create registers a new memo for an audio file. The title defaults to the
// file's base name until auto-titling replaces it.
func (s *Store) Create(ctx context.Context, audioPath string, durationSeconds float64) (*Memo, error) {
	now := s.clk.Now()
	memo := &Memo{
		ID:              uuid.NewString(),
		Title:           filepath.Base(audioPath),
		AudioPath:       audioPath,
		DurationSeconds: durationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO memos (`+memoColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		memo.ID,
		memo.Title,
		memo.AudioPath,
		memo.DurationSeconds,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert memo: %w", err)
	}
	return memo, nil
}

// ByID fetches a memo, nil when absent.
func (s *Store) ByID(ctx context.Context, id string) (*Memo, error) {
	return s.queryOne(ctx, `SELECT `+memoColumns+` FROM memos WHERE id = ?`, id)
}

// ByAudioPath fetches the memo registered for an audio file, nil when the
// file has not been seen before. The inbox watcher uses it to dedupe repeat
// filesystem events for the same file.
func (s *Store) ByAudioPath(ctx context.Context, audioPath string) (*Memo, error) {
	return s.queryOne(ctx, `SELECT `+memoColumns+` FROM memos WHERE audio_path = ?`, audioPath)
}

// All returns every memo, newest first.
func (s *Store) All(ctx context.Context) ([]*Memo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoColumns+` FROM memos ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query memos: %w", err)
	}
	defer rows.Close()

	var out []*Memo
	for rows.Next() {
		memo, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, memo)
	}
	return out, rows.Err()
}

// UpdateTitle replaces the memo's title. The auto-title worker is the main
// caller.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE memos SET title = ?, updated_at = ? WHERE id = ?`,
		title,
		s.clk.Now().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update memo title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateDuration records the audio duration once it is known.
func (s *Store) UpdateDuration(ctx context.Context, id string, durationSeconds float64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE memos SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		durationSeconds,
		s.clk.Now().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update memo duration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a memo. Deleting an absent memo is not an error; the
// caller is responsible for cascading into jobs and results.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete memo: %w", err)
	}
	return nil
}

// Count returns the number of memos.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM memos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count memos: %w", err)
	}
	return count, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*Memo, error) {
	memo, err := scanMemo(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memo: %w", err)
	}
	return memo, nil
}

func scanMemo(scanner interface{ Scan(dest ...any) error }) (*Memo, error) {
	var (
		memo       Memo
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&memo.ID,
		&memo.Title,
		&memo.AudioPath,
		&memo.DurationSeconds,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		memo.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		memo.UpdatedAt = updated
	}
	return &memo, nil
}
