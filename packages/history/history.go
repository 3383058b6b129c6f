// Package history records every fetch of a run in a SQLite database so runs
// can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	iteration    INTEGER NOT NULL,
	url          TEXT NOT NULL,
	name         TEXT NOT NULL,
	artifact     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	status_line  TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	bytes        INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS fetches_run_id ON fetches (run_id, iteration);
`

// Entry is one recorded fetch.
type Entry struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	Iteration   int       `json:"iteration"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Artifact    string    `json:"artifact,omitempty"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	StatusLine  string    `json:"statusLine,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Bytes       int       `json:"bytes"`
	DurationMs  int64     `json:"durationMs"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Filter narrows List results.
type Filter struct {
	RunID string
	Limit int
}

// Store is a fetch history database.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens (creating if needed) the database at path. Accepted forms are a
// plain file path, sqlite://path and sqlite:path.
func Open(path string) (*Store, error) {
	dsn := parseConnectionString(path)
	if dsn == "" {
		return nil, fmt.Errorf("empty history database path")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:           db,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts e. Missing ID and CreatedAt are filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetches (id, run_id, iteration, url, name, artifact, status, reason,
			status_line, content_type, bytes, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Iteration, e.URL, e.Name, e.Artifact, e.Status, e.Reason,
		e.StatusLine, e.ContentType, e.Bytes, e.DurationMs, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// List returns entries, newest run first and in iteration order within a run.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, run_id, iteration, url, name, artifact, status, reason,
		status_line, content_type, bytes, duration_ms, error, created_at FROM fetches`
	var args []any
	if f.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, f.RunID)
	}
	// Runs are ordered by their latest fetch, rows within a run by iteration.
	query += ` ORDER BY MAX(created_at) OVER (PARTITION BY run_id) DESC, run_id, iteration ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.URL, &e.Name, &e.Artifact,
			&e.Status, &e.Reason, &e.StatusLine, &e.ContentType, &e.Bytes, &e.DurationMs,
			&e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// parseConnectionString strips the sqlite:// or sqlite: prefix
func parseConnectionString(connStr string) string {
	connStr = strings.TrimSpace(connStr)
	if strings.HasPrefix(connStr, "sqlite://") {
		return strings.TrimPrefix(connStr, "sqlite://")
	}
	return strings.TrimPrefix(connStr, "sqlite:")
}
