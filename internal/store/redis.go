// Package store: Redis remote tier.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Handled markers carry the TTL natively via SET EX; the
// cursors and override are plain scalars.
const (
	redisHandledPrefix    = "castpipe:handled:"
	redisKeyProcessedTS   = "castpipe:cursor:last_processed_ts"
	redisKeyPollTS        = "castpipe:cursor:last_poll_ts"
	redisKeyIntervalOverr = "castpipe:poll:interval_override_ms"
)

// RedisStore is a Store backed by a Redis server.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis using the configured URL and verifies the
// connection with a ping.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("RedisStore.NewRedisStore: creating Redis store", "url_set", cfg.RedisURL != "")
	if cfg.RedisURL == "" {
		slog.Error("RedisStore URL not set")
		return nil, fmt.Errorf("redis URL not set")
	}
	ropts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("RedisStore failed to parse URL", "error", err)
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err)
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("RedisStore ping successful")
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, redisHandledPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("redis handled check failed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := s.client.Set(ctx, redisHandledPrefix+id, time.Now().UnixMilli(), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis mark handled failed: %w", err)
	}
	slog.Debug("RedisStore.MarkHandled succeeded", "id", id)
	return nil
}

func (s *RedisStore) getScalar(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) setScalar(ctx context.Context, key string, v int64) error {
	if v <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, key, v, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	return s.getScalar(ctx, redisKeyProcessedTS)
}

func (s *RedisStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	return s.setScalar(ctx, redisKeyProcessedTS, ts)
}

func (s *RedisStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	return s.getScalar(ctx, redisKeyPollTS)
}

func (s *RedisStore) SetLastPollTS(ctx context.Context, ts int64) error {
	return s.setScalar(ctx, redisKeyPollTS, ts)
}

func (s *RedisStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	ms, ok, err := s.getScalar(ctx, redisKeyIntervalOverr)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

func (s *RedisStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval override must be positive, got %v", d)
	}
	return s.setScalar(ctx, redisKeyIntervalOverr, d.Milliseconds())
}

func (s *RedisStore) ClearPollIntervalOverride(ctx context.Context) error {
	if err := s.client.Del(ctx, redisKeyIntervalOverr).Err(); err != nil {
		return fmt.Errorf("redis clear interval override failed: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis connection")
	return s.client.Close()
}
