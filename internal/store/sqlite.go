// Package store: SQLite-backed tier.
//
// This file implements an SQLite-backed store for handled markers and
// cursors, for single-host deployments without a Redis or Postgres server.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, ttl: cfg.TTL}, nil
}

func (s *SQLiteStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	var found string
	err := s.db.QueryRowContext(ctx,
		`SELECT mention_id FROM handled_markers WHERE mention_id = ? AND handled_at > ?`, id, cutoff).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore IsHandled failed", "error", err, "id", id)
		return false, fmt.Errorf("handled check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO handled_markers (mention_id, handled_at) VALUES (?, ?)`, id, now)
	if err != nil {
		slog.Error("SQLiteStore MarkHandled failed", "error", err, "id", id)
		return fmt.Errorf("mark handled failed: %w", err)
	}
	// Expired markers are invisible to reads; sweep them here so the table
	// does not grow without bound.
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handled_markers WHERE handled_at <= ?`, cutoff); err != nil {
		slog.Warn("SQLiteStore MarkHandled sweep failed", "error", err)
	}
	slog.Debug("SQLiteStore MarkHandled succeeded", "id", id)
	return nil
}

func (s *SQLiteStore) getCursor(ctx context.Context, name string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bot_cursors WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore cursor read failed", "error", err, "name", name)
		return 0, false, fmt.Errorf("cursor read failed: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) setCursor(ctx context.Context, name string, v int64) error {
	if v <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bot_cursors (name, value) VALUES (?, ?)`, name, v)
	if err != nil {
		slog.Error("SQLiteStore cursor write failed", "error", err, "name", name)
		return fmt.Errorf("cursor write failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	return s.getCursor(ctx, cursorProcessed)
}

func (s *SQLiteStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	return s.setCursor(ctx, cursorProcessed, ts)
}

func (s *SQLiteStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	return s.getCursor(ctx, cursorPoll)
}

func (s *SQLiteStore) SetLastPollTS(ctx context.Context, ts int64) error {
	return s.setCursor(ctx, cursorPoll, ts)
}

func (s *SQLiteStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	ms, ok, err := s.getCursor(ctx, cursorIntervalOverride)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

func (s *SQLiteStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval override must be positive, got %v", d)
	}
	return s.setCursor(ctx, cursorIntervalOverride, d.Milliseconds())
}

func (s *SQLiteStore) ClearPollIntervalOverride(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_cursors WHERE name = ?`, cursorIntervalOverride)
	if err != nil {
		slog.Error("SQLiteStore ClearPollIntervalOverride failed", "error", err)
		return fmt.Errorf("clear interval override failed: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
