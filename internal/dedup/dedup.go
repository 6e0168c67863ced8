// Package dedup provides the gate every mention must pass before the bot
// takes any externally visible action.
//
// The guarantee is at-most-mostly-once: dispatch logic checks AlreadyHandled
// before posting and calls Commit only after the post succeeds. A crash
// between check and post leaves the mention retryable; a crash after a
// successful post but before Commit risks one duplicate reply on the next
// poll. Duplicate replies are possible on that window, missed replies are not
// expected absent store failure.
package dedup

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/CastPipe/internal/store"
)

// Gate answers "already handled?" and "mark as handled" against the marker store.
type Gate struct {
	store store.Store
}

// NewGate creates a Gate over the given marker store.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s}
}

// AlreadyHandled reports whether the mention id was already replied to.
// Empty ids and store failures fail open to false so dispatch is never
// blocked by a degraded store.
func (g *Gate) AlreadyHandled(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	handled, err := g.store.IsHandled(ctx, id)
	if err != nil {
		slog.Warn("Gate.AlreadyHandled: store check failed, failing open", "error", err, "id", id)
		return false
	}
	return handled
}

// Commit records the mention id as handled. Call only after the reply action
// succeeded. Best-effort: failures are logged, never returned.
func (g *Gate) Commit(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := g.store.MarkHandled(ctx, id); err != nil {
		slog.Warn("Gate.Commit: marking failed, mention may be re-replied", "error", err, "id", id)
	}
}
