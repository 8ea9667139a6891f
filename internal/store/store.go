// Package store provides the durable, single-writer persistence layer
// backing workbench: a single SQLite file under WAL journaling, opened
// through database/sql. Writers retry on SQLITE_BUSY/SQLITE_LOCKED up
// to a short budget before surfacing an error to the caller; readers
// use the same pool since WAL allows concurrent readers alongside one
// writer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrBusy is returned when a write could not complete after the retry
// budget because the database stayed locked.
var ErrBusy = errors.New("store: busy, retry")

// ErrNotFound is returned when a get-by-id query has no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is the durable persistence layer. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	publisher Publisher
}

// Open opens (creating if necessary) the SQLite database at path,
// enables WAL journaling and foreign keys, and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// SQLite allows only one writer; a single pooled connection avoids
	// "database is locked" churn between Go-level connections while WAL
	// still allows readers to proceed using that same connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, logger: slog.Default().With("component", "store")}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	for _, stmt := range additiveColumns {
		if _, err := s.db.Exec(stmt); err != nil {
			if !isDuplicateColumn(err) {
				return fmt.Errorf("store: additive schema: %w", err)
			}
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (e.g. health checks)
// that need direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

const (
	retryAttempts = 6
	retryBudget   = 1 * time.Second
)

// withRetry runs fn, retrying on a busy/locked SQLite error with linear
// backoff until retryAttempts is exhausted or retryBudget elapses.
func withRetry(ctx context.Context, fn func() error) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}
		if time.Since(start) >= retryBudget {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrBusy, lastErr)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
