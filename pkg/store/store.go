package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// busyTimeoutMs lets an overlapping collector run or a report reader wait
// for a short write transaction instead of failing with SQLITE_BUSY.
const busyTimeoutMs = 5000

var schema = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT    NOT NULL DEFAULT '',
		measured_at   INTEGER NOT NULL,
		utc_offset    INTEGER NOT NULL DEFAULT 0,
		status        TEXT    NOT NULL CHECK (status IN ('ok', 'error')),
		download_mbps REAL,
		upload_mbps   REAL,
		ping_ms       REAL,
		jitter_ms     REAL,
		provider      TEXT,
		server_id     TEXT,
		server_name   TEXT,
		result_url    TEXT,
		error_message TEXT,
		raw_payload   TEXT    NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		CHECK (
			(status = 'ok'
				AND download_mbps IS NOT NULL AND upload_mbps IS NOT NULL
				AND ping_ms IS NOT NULL AND jitter_ms IS NOT NULL
				AND error_message IS NULL)
			OR
			(status = 'error'
				AND download_mbps IS NULL AND upload_mbps IS NULL
				AND ping_ms IS NULL AND jitter_ms IS NULL
				AND error_message IS NOT NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_measured_at ON samples(measured_at)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_status ON samples(status)`,
}

const insertSQL = `INSERT INTO samples (
	run_id, measured_at, utc_offset, status,
	download_mbps, upload_mbps, ping_ms, jitter_ms,
	provider, server_id, server_name, result_url,
	error_message, raw_payload, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const querySQL = `SELECT
	run_id, measured_at, utc_offset, status,
	download_mbps, upload_mbps, ping_ms, jitter_ms,
	provider, server_id, server_name, result_url,
	error_message, raw_payload
FROM samples
WHERE measured_at >= ? AND measured_at < ?
ORDER BY measured_at ASC, id ASC`

const deleteSQL = `DELETE FROM samples WHERE measured_at < ?`

const countSQL = `SELECT COUNT(*) FROM samples`

// Store is the durable, append-only sample log.
//
// Every Append is its own short transaction, so an interrupted or
// overlapping collector run can never leave a partial row behind, and a
// report reader is never blocked for longer than one insert.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// New wraps an already-open database. The schema is not touched; call
// Migrate when the database may be fresh.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %q: %w", path, err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("store: opened", "path", path)
	return s, nil
}

// Migrate creates the samples table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append durably persists one sample and returns its row id.
// Samples violating the metric/error invariant are rejected before any
// write happens.
func (s *Store) Append(ctx context.Context, sample types.Sample) (int64, error) {
	if err := sample.Validate(); err != nil {
		return 0, fmt.Errorf("store: append: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: append: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	res, err := tx.ExecContext(ctx, insertSQL, insertArgs(sample, s.now())...)
	if err != nil {
		return 0, fmt.Errorf("store: append: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: append: commit: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append: last insert id: %w", err)
	}
	return id, nil
}

// Query returns every sample with start <= timestamp < end, oldest first.
func (s *Store) Query(ctx context.Context, start, end time.Time) ([]types.Sample, error) {
	rows, err := s.db.QueryContext(ctx, querySQL, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []types.Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("store: query: scan: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	return out, nil
}

// CleanupOld hard-deletes samples older than now minus retentionDays and
// returns the number removed. Running it again with nothing eligible
// returns 0.
func (s *Store) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("store: cleanup: retention days must be positive, got %d", retentionDays)
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	res, err := s.db.ExecContext(ctx, deleteSQL, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: rows affected: %w", err)
	}
	if n > 0 {
		slog.Info("store: removed expired samples",
			"count", n, "retention_days", retentionDays, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Count returns the total number of stored samples.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
