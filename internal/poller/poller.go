// Package poller owns the repeating mention poll: a single timer, a
// single-flight tick, the cursor-based backlog filter, and runtime interval
// reconfiguration.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/CastPipe/internal/dedup"
	"github.com/BTreeMap/CastPipe/internal/models"
	"github.com/BTreeMap/CastPipe/internal/store"
	"github.com/BTreeMap/CastPipe/internal/trace"
)

// Default timing configuration.
const (
	DefaultInterval          = 90 * time.Second
	DefaultMinInterval       = 15 * time.Second
	DefaultMaxInterval       = 15 * time.Minute
	DefaultReconcileInterval = time.Minute
)

// Source produces normalized mentions from the feed.
type Source interface {
	RecentMentions(ctx context.Context) ([]models.Mention, error)
}

// Dispatcher routes one mention through the reply pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, m models.Mention) (bool, error)
}

// Config holds poller timing settings.
type Config struct {
	// Interval is the static default polling period, assumed within bounds.
	Interval time.Duration
	// MinInterval and MaxInterval clamp the operator override.
	MinInterval time.Duration
	MaxInterval time.Duration
	// ReconcileInterval is how often the override is re-read. Deliberately
	// slower than the poll tick so a reinstall never resets timing forever.
	ReconcileInterval time.Duration
	// Disabled prevents any timer installation until the process restarts.
	Disabled bool
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
}

// Poller drives the polling delivery path. Construct with New and release
// with Stop; all state lives on the struct so tests get clean instances.
type Poller struct {
	source     Source
	gate       *dedup.Gate
	dispatcher Dispatcher
	store      store.Store
	tracer     *trace.Tracer
	cfg        Config

	mu       sync.Mutex
	ticking  bool
	current  time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a poller. tracer may be nil.
func New(source Source, gate *dedup.Gate, dispatcher Dispatcher, st store.Store, tracer *trace.Tracer, cfg Config) *Poller {
	cfg.applyDefaults()
	return &Poller{
		source:     source,
		gate:       gate,
		dispatcher: dispatcher,
		store:      st,
		tracer:     tracer,
		cfg:        cfg,
	}
}

// EffectiveInterval is the polling period after override and clamping logic:
// the operator override clamped into [MinInterval, MaxInterval] when present,
// else the static default.
func (p *Poller) EffectiveInterval(ctx context.Context) time.Duration {
	override, ok, err := p.store.PollIntervalOverride(ctx)
	if err != nil || !ok {
		return p.cfg.Interval
	}
	if override < p.cfg.MinInterval {
		return p.cfg.MinInterval
	}
	if override > p.cfg.MaxInterval {
		return p.cfg.MaxInterval
	}
	return override
}

// CurrentInterval is the interval the running timer was installed with.
func (p *Poller) CurrentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Start installs the poll timer and the slower reconcile timer. A disabled
// poller installs nothing; mentions then arrive only via webhook or manual
// trigger.
func (p *Poller) Start(ctx context.Context) {
	if p.cfg.Disabled {
		slog.Info("Poller.Start: polling disabled, no timer installed")
		return
	}
	p.mu.Lock()
	p.current = p.EffectiveInterval(ctx)
	p.ticker = time.NewTicker(p.current)
	p.stop = make(chan struct{})
	p.mu.Unlock()

	slog.Info("Poller.Start: polling started", "interval", p.current)
	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	reconcile := time.NewTicker(p.cfg.ReconcileInterval)
	defer reconcile.Stop()
	defer p.ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-p.ticker.C:
			// Run off the loop goroutine so a slow tick never delays
			// reconciliation; overlap is dropped by the ticking flag.
			go p.Poll(ctx)
		case <-reconcile.C:
			p.reconcileInterval(ctx)
		}
	}
}

// reconcileInterval reinstalls the timer only when the desired interval
// changed; resetting on every pass would push the next fire out forever.
func (p *Poller) reconcileInterval(ctx context.Context) {
	desired := p.EffectiveInterval(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker == nil || desired == p.current {
		return
	}
	slog.Info("Poller.reconcileInterval: interval changed", "old", p.current, "new", desired)
	p.ticker.Reset(desired)
	p.current = desired
}

// Stop tears down the timers and waits for the loop to exit. An in-flight
// tick runs to completion; there is no cancellation primitive for it.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.mu.Unlock()
	if stop == nil {
		return
	}
	p.stopOnce.Do(func() { close(stop) })
	p.wg.Wait()
	slog.Info("Poller.Stop: polling stopped")
}

func (p *Poller) beginTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticking {
		return false
	}
	p.ticking = true
	return true
}

func (p *Poller) endTick() {
	p.mu.Lock()
	p.ticking = false
	p.mu.Unlock()
}

// Poll executes one poll pass. At most one pass runs at a time system-wide:
// a call while another pass is executing is dropped entirely (no queueing)
// and reports Skipped. Exported for the manual /poll trigger.
func (p *Poller) Poll(ctx context.Context) models.PollResult {
	if !p.beginTick() {
		slog.Debug("Poller.Poll: tick already in flight, dropping")
		return models.PollResult{Skipped: true}
	}
	defer p.endTick()
	return p.tick(ctx)
}

func (p *Poller) tick(ctx context.Context) models.PollResult {
	// Poll cursor is written unconditionally at the start of every attempt,
	// regardless of outcome.
	p.store.SetLastPollTS(ctx, time.Now().UnixMilli())
	slog.Debug("Poller.tick: poll started")

	batch, err := p.source.RecentMentions(ctx)
	if err != nil {
		slog.Error("Poller.tick: fetch failed", "error", err)
		p.record("error", "mention fetch failed", map[string]interface{}{"error": err.Error()})
		return models.PollResult{}
	}

	cursor, haveCursor, _ := p.store.LastProcessedTS(ctx)
	part := partitionBatch(batch, cursor, haveCursor)

	if part.baseline {
		if part.maxTS > 0 {
			p.store.SetLastProcessedTS(ctx, part.maxTS)
		}
		slog.Info("Poller.tick: cursor baseline established", "total", len(batch), "cursor", part.maxTS)
		p.record("info", "poll baseline", map[string]interface{}{"total": len(batch), "cursor": part.maxTS})
		return models.PollResult{Total: len(batch), Baseline: true}
	}

	// Second, independent filter: chronologically recent mentions that the
	// gate already knows about (e.g. reprocessed after a crash, or answered
	// via webhook) are skipped but still count as processed for the cursor.
	var fresh []models.Mention
	var processedMax int64
	for _, m := range part.recent {
		if p.gate.AlreadyHandled(ctx, m.ID) {
			if m.TimestampMs > processedMax {
				processedMax = m.TimestampMs
			}
			continue
		}
		fresh = append(fresh, m)
	}

	replied := 0
	for _, m := range fresh {
		ok, err := p.dispatcher.Dispatch(ctx, m)
		if err != nil {
			// Failed dispatch: no reply for this mention now, and no cursor
			// credit, so the next poll can pick it up again.
			continue
		}
		if ok {
			replied++
		}
		if m.TimestampMs > processedMax {
			processedMax = m.TimestampMs
		}
	}

	// Monotonic advance: never regress the cursor.
	if processedMax > cursor {
		p.store.SetLastProcessedTS(ctx, processedMax)
	}

	slog.Info("Poller.tick: poll finished", "total", len(batch), "new", len(fresh), "replied", replied)
	p.record("info", "poll finished", map[string]interface{}{"total": len(batch), "new": len(fresh), "replied": replied})
	return models.PollResult{Total: len(batch), New: len(fresh), Replied: replied}
}

func (p *Poller) record(level, message string, meta map[string]interface{}) {
	if p.tracer != nil {
		p.tracer.Record(level, message, meta)
	}
}
