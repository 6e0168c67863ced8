// Package store provides storage backends for CastPipe's handled-mention
// markers and poll cursors.
//
// Four pieces of state live here: the handled-marker set, the processed
// cursor, the poll cursor, and the optional poll-interval override. All share
// the availability characteristics of the backing store; callers compose a
// remote tier with the local file tier via NewFallbackStore so the bot keeps
// replying even with zero persistence.
package store

import (
	"context"
	"time"
)

// Default retention settings for handled markers. The TTL applies to every
// tier; the entry ceiling is enforced only by the file tier, which prunes
// oldest-first on each read/write.
const (
	DefaultTTL        = 14 * 24 * time.Hour
	DefaultMaxEntries = 5000
)

// Cursor names shared by the SQL tiers.
const (
	cursorProcessed        = "last_processed_ts"
	cursorPoll             = "last_poll_ts"
	cursorIntervalOverride = "poll_interval_override_ms"
)

// Store records which mention ids have been replied to, plus the scalar poll
// cursors and the runtime-tunable polling-interval override.
//
// Cursor reads return ok=false when the value was never written. Cursor
// monotonicity is NOT enforced at this layer; the poller enforces it before
// writing. Writes of non-positive values are rejected by each backend.
type Store interface {
	// IsHandled reports whether a mention id has already been replied to.
	// An expired marker reads as not handled.
	IsHandled(ctx context.Context, id string) (bool, error)

	// MarkHandled records that a mention id has been replied to. Idempotent.
	MarkHandled(ctx context.Context, id string) error

	// LastProcessedTS is the latest mention timestamp (epoch ms) known to
	// have been processed.
	LastProcessedTS(ctx context.Context) (int64, bool, error)
	SetLastProcessedTS(ctx context.Context, ts int64) error

	// LastPollTS is the time (epoch ms) the last poll attempt began.
	// Diagnostics only; carries no correctness invariant.
	LastPollTS(ctx context.Context) (int64, bool, error)
	SetLastPollTS(ctx context.Context, ts int64) error

	// PollIntervalOverride is the operator-requested polling period. The
	// poller clamps it into its configured bounds before use.
	PollIntervalOverride(ctx context.Context) (time.Duration, bool, error)
	SetPollIntervalOverride(ctx context.Context, d time.Duration) error
	ClearPollIntervalOverride(ctx context.Context) error

	Close() error
}
