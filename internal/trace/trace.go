// Package trace keeps a small in-memory ring buffer of recent diagnostic
// events, served by the /traces endpoint. It complements structured logs with
// a queryable window into what the bot did last, without any storage
// dependency.
package trace

import (
	"sync"
	"time"
)

// Defaults for buffer capacity and query limit.
const (
	DefaultCapacity = 300
	DefaultLimit    = 200
)

// Entry is one recorded diagnostic event.
type Entry struct {
	TS      time.Time              `json:"ts"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Tracer is a fixed-capacity ring buffer of entries. Construct one per
// process (or per test) rather than sharing a package-level singleton.
type Tracer struct {
	mu  sync.Mutex
	buf []Entry
	cap int
}

// NewTracer creates a tracer holding at most capacity entries; capacity <= 0
// uses DefaultCapacity.
func NewTracer(capacity int) *Tracer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracer{cap: capacity}
}

// Record appends an entry, evicting the oldest entries beyond capacity.
func (t *Tracer) Record(level, message string, meta map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, Entry{TS: time.Now().UTC(), Level: level, Message: message, Meta: meta})
	if len(t.buf) > t.cap {
		t.buf = t.buf[len(t.buf)-t.cap:]
	}
}

// Recent returns up to limit of the newest entries, oldest first. limit <= 0
// uses DefaultLimit.
func (t *Tracer) Recent(limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start := 0
	if len(t.buf) > limit {
		start = len(t.buf) - limit
	}
	out := make([]Entry, len(t.buf)-start)
	copy(out, t.buf[start:])
	return out
}
