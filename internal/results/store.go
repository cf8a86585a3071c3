package results

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
)

// RecordStore is the opaque durable tier the repositories read through to.
// It is transactional at single-record granularity; the repository layer
// never assumes multi-key transactions.
type RecordStore interface {
	ReadRecord(ctx context.Context, key string) ([]byte, error)
	WriteRecord(ctx context.Context, key string, data []byte) error
	DeleteRecord(ctx context.Context, key string) error
	HasRecord(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
    key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore implements RecordStore on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	clk clock.Clock
}

// SQLiteStoreOption configures optional SQLiteStore behavior.
type SQLiteStoreOption func(*SQLiteStore)

// WithStoreClock injects the clock used for record timestamps.
func WithStoreClock(clk clock.Clock) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// OpenSQLiteStore initializes or connects to the records database.
func OpenSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
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

	if _, err := db.Exec(recordsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records schema: %w", err)
	}

	store := &SQLiteStore{db: db, clk: clock.System()}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReadRecord returns the stored bytes for a key, nil when absent.
func (s *SQLiteStore) ReadRecord(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record %q: %w", key, err)
	}
	return data, nil
}

// WriteRecord stores data under key, replacing any previous value.
func (s *SQLiteStore) WriteRecord(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO records (key, data, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key,
		data,
		s.clk.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write record %q: %w", key, err)
	}
	return nil
}

// DeleteRecord removes a key. Deleting an absent key is not an error.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete record %q: %w", key, err)
	}
	return nil
}

// HasRecord reports whether a key exists without reading its payload.
func (s *SQLiteStore) HasRecord(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check record %q: %w", key, err)
	}
	return true, nil
}

// ListKeys returns every key beginning with prefix, sorted.
func (s *SQLiteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key FROM records WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func escapeLike(value string) string {
	out := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, value[i])
	}
	return string(out)
}
