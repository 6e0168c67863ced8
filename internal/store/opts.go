package store

import (
	"strings"
	"time"
)

// Opts holds configuration for store backends.
type Opts struct {
	// DSN is the connection string for SQL backends (PostgreSQL DSN or
	// SQLite file path).
	DSN string
	// RedisURL is the connection URL for the Redis backend.
	RedisURL string
	// FilePath is the JSON snapshot path for the file backend.
	FilePath string
	// TTL overrides DefaultTTL for handled markers.
	TTL time.Duration
	// MaxEntries overrides DefaultMaxEntries for the file backend.
	MaxEntries int
}

// Option configures store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithFilePath sets the JSON snapshot path for the file backend.
func WithFilePath(path string) Option {
	return func(o *Opts) { o.FilePath = path }
}

// WithTTL sets the handled-marker time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithMaxEntries sets the file-tier entry ceiling.
func WithMaxEntries(n int) Option {
	return func(o *Opts) { o.MaxEntries = n }
}

func applyOptions(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return cfg
}

// DetectDSNType classifies a connection string as "redis", "postgres", or
// "sqlite" (the fallback for plain file paths).
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "postgres"
	default:
		return "sqlite"
	}
}
