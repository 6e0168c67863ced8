// Package dispatch routes a canonical mention through the dedup gate, the
// reply generator, and the reply sink.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/CastPipe/internal/dedup"
	"github.com/BTreeMap/CastPipe/internal/models"
	"github.com/BTreeMap/CastPipe/internal/trace"
)

// ReplyGenerator produces reply text for a mention.
type ReplyGenerator interface {
	ReplyTo(ctx context.Context, m models.Mention) (string, error)
}

// ReplySink posts a reply under a parent cast.
type ReplySink interface {
	ReplyCast(ctx context.Context, parentID, text string) error
}

// Dispatcher connects the two delivery paths (webhook and poll) to the reply
// pipeline. Both paths must go through Dispatch so the gate is checked
// immediately before any externally visible action.
type Dispatcher struct {
	gate   *dedup.Gate
	gen    ReplyGenerator
	sink   ReplySink
	tracer *trace.Tracer
}

// NewDispatcher creates a dispatcher. tracer may be nil.
func NewDispatcher(gate *dedup.Gate, gen ReplyGenerator, sink ReplySink, tracer *trace.Tracer) *Dispatcher {
	return &Dispatcher{gate: gate, gen: gen, sink: sink, tracer: tracer}
}

// Dispatch replies to a mention unless it has no id or was already handled.
// The gate commit happens only after the reply posts successfully, so a
// failure anywhere leaves the mention retryable. Returns whether a reply was
// posted; a nil error with replied=false means the mention was skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, m models.Mention) (bool, error) {
	if m.ID == "" {
		slog.Debug("Dispatcher.Dispatch: mention without id, skipping")
		return false, nil
	}
	if d.gate.AlreadyHandled(ctx, m.ID) {
		slog.Debug("Dispatcher.Dispatch: already handled, skipping", "id", m.ID)
		return false, nil
	}

	text, err := d.gen.ReplyTo(ctx, m)
	if err != nil {
		slog.Error("Dispatcher.Dispatch: reply generation failed", "error", err, "id", m.ID)
		d.record("error", "reply generation failed", m.ID)
		return false, err
	}
	if err := d.sink.ReplyCast(ctx, m.ID, text); err != nil {
		slog.Error("Dispatcher.Dispatch: reply post failed", "error", err, "id", m.ID)
		d.record("error", "reply post failed", m.ID)
		return false, err
	}

	// Commit after the visible action: a crash in between risks one
	// duplicate reply, never a silently dropped mention.
	d.gate.Commit(ctx, m.ID)
	slog.Info("Dispatcher.Dispatch: replied", "id", m.ID)
	d.record("info", "replied to mention", m.ID)
	return true, nil
}

func (d *Dispatcher) record(level, message, id string) {
	if d.tracer != nil {
		d.tracer.Record(level, message, map[string]interface{}{"id": id})
	}
}
