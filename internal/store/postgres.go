// Package store: PostgreSQL-backed tier.
//
// This file implements a PostgreSQL-backed store for handled markers and
// cursors, for deployments where several services share a database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, ttl: cfg.TTL}, nil
}

func (s *PostgresStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	var found string
	err := s.db.QueryRowContext(ctx,
		`SELECT mention_id FROM handled_markers WHERE mention_id = $1 AND handled_at > $2`, id, cutoff).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore IsHandled failed", "error", err, "id", id)
		return false, fmt.Errorf("handled check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handled_markers (mention_id, handled_at) VALUES ($1, $2)
		 ON CONFLICT (mention_id) DO UPDATE SET handled_at = EXCLUDED.handled_at`, id, now)
	if err != nil {
		slog.Error("PostgresStore MarkHandled failed", "error", err, "id", id)
		return fmt.Errorf("mark handled failed: %w", err)
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handled_markers WHERE handled_at <= $1`, cutoff); err != nil {
		slog.Warn("PostgresStore MarkHandled sweep failed", "error", err)
	}
	slog.Debug("PostgresStore MarkHandled succeeded", "id", id)
	return nil
}

func (s *PostgresStore) getCursor(ctx context.Context, name string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bot_cursors WHERE name = $1`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore cursor read failed", "error", err, "name", name)
		return 0, false, fmt.Errorf("cursor read failed: %w", err)
	}
	return v, true, nil
}

func (s *PostgresStore) setCursor(ctx context.Context, name string, v int64) error {
	if v <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_cursors (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, v)
	if err != nil {
		slog.Error("PostgresStore cursor write failed", "error", err, "name", name)
		return fmt.Errorf("cursor write failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	return s.getCursor(ctx, cursorProcessed)
}

func (s *PostgresStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	return s.setCursor(ctx, cursorProcessed, ts)
}

func (s *PostgresStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	return s.getCursor(ctx, cursorPoll)
}

func (s *PostgresStore) SetLastPollTS(ctx context.Context, ts int64) error {
	return s.setCursor(ctx, cursorPoll, ts)
}

func (s *PostgresStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	ms, ok, err := s.getCursor(ctx, cursorIntervalOverride)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

func (s *PostgresStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval override must be positive, got %v", d)
	}
	return s.setCursor(ctx, cursorIntervalOverride, d.Milliseconds())
}

func (s *PostgresStore) ClearPollIntervalOverride(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_cursors WHERE name = $1`, cursorIntervalOverride)
	if err != nil {
		slog.Error("PostgresStore ClearPollIntervalOverride failed", "error", err)
		return fmt.Errorf("clear interval override failed: %w", err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
