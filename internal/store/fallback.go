// Package store: capability-degradation composite.
package store

import (
	"context"
	"log/slog"
	"time"
)

// FallbackStore tries a remote tier first and degrades to the local file tier
// when it fails. Failures never reach the caller: marker reads fail open to
// "not handled", marker writes fall back to the file snapshot, and cursor or
// override writes with no surviving tier are dropped. This keeps the bot's
// reply path alive with zero persistence.
type FallbackStore struct {
	primary  Store
	fallback Store
}

var _ Store = (*FallbackStore)(nil)

// NewFallbackStore composes a primary store with a fallback tier. primary may
// be nil, in which case every operation goes straight to the fallback.
func NewFallbackStore(primary, fallback Store) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback}
}

func (s *FallbackStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	if s.primary != nil {
		handled, err := s.primary.IsHandled(ctx, id)
		if err == nil {
			return handled, nil
		}
		slog.Warn("FallbackStore.IsHandled: primary failed, using fallback", "error", err, "id", id)
	}
	handled, err := s.fallback.IsHandled(ctx, id)
	if err != nil {
		slog.Warn("FallbackStore.IsHandled: fallback failed, treating as unhandled", "error", err, "id", id)
		return false, nil
	}
	return handled, nil
}

func (s *FallbackStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if s.primary != nil {
		if err := s.primary.MarkHandled(ctx, id); err == nil {
			return nil
		} else {
			slog.Warn("FallbackStore.MarkHandled: primary failed, using fallback", "error", err, "id", id)
		}
	}
	if err := s.fallback.MarkHandled(ctx, id); err != nil {
		slog.Warn("FallbackStore.MarkHandled: fallback failed, marker dropped", "error", err, "id", id)
	}
	return nil
}

// tier returns the store that owns scalar state: the primary when configured,
// else the fallback. Scalars have no second tier; a failure is dropped.
func (s *FallbackStore) tier() Store {
	if s.primary != nil {
		return s.primary
	}
	return s.fallback
}

func (s *FallbackStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	v, ok, err := s.tier().LastProcessedTS(ctx)
	if err != nil {
		slog.Warn("FallbackStore.LastProcessedTS: read failed, treating as unset", "error", err)
		return 0, false, nil
	}
	return v, ok, nil
}

func (s *FallbackStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	if err := s.tier().SetLastProcessedTS(ctx, ts); err != nil {
		slog.Warn("FallbackStore.SetLastProcessedTS: write dropped", "error", err, "ts", ts)
	}
	return nil
}

func (s *FallbackStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	v, ok, err := s.tier().LastPollTS(ctx)
	if err != nil {
		slog.Warn("FallbackStore.LastPollTS: read failed, treating as unset", "error", err)
		return 0, false, nil
	}
	return v, ok, nil
}

func (s *FallbackStore) SetLastPollTS(ctx context.Context, ts int64) error {
	if err := s.tier().SetLastPollTS(ctx, ts); err != nil {
		slog.Warn("FallbackStore.SetLastPollTS: write dropped", "error", err, "ts", ts)
	}
	return nil
}

func (s *FallbackStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	d, ok, err := s.tier().PollIntervalOverride(ctx)
	if err != nil {
		slog.Warn("FallbackStore.PollIntervalOverride: read failed, treating as unset", "error", err)
		return 0, false, nil
	}
	return d, ok, nil
}

func (s *FallbackStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	// Validation errors surface so the admin endpoint can reject bad values;
	// transport errors are dropped like any other scalar write.
	err := s.tier().SetPollIntervalOverride(ctx, d)
	if err != nil && d > 0 {
		slog.Warn("FallbackStore.SetPollIntervalOverride: write dropped", "error", err, "interval", d)
		return nil
	}
	return err
}

func (s *FallbackStore) ClearPollIntervalOverride(ctx context.Context) error {
	if err := s.tier().ClearPollIntervalOverride(ctx); err != nil {
		slog.Warn("FallbackStore.ClearPollIntervalOverride: write dropped", "error", err)
	}
	return nil
}

// Close closes both tiers.
func (s *FallbackStore) Close() error {
	var err error
	if s.primary != nil {
		err = s.primary.Close()
	}
	if ferr := s.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
