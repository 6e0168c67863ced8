package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/CastPipe/internal/dedup"
	"github.com/BTreeMap/CastPipe/internal/models"
	"github.com/BTreeMap/CastPipe/internal/store"
)

type stubSource struct {
	mentions []models.Mention
	err      error
	release  chan struct{}
	started  chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *stubSource) RecentMentions(ctx context.Context) ([]models.Mention, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	if s.release != nil {
		<-s.release
	}
	return s.mentions, s.err
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	err        error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, m models.Mention) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	d.dispatched = append(d.dispatched, m.ID)
	return true, nil
}

func (d *stubDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dispatched...)
}

func newTestPoller(src Source, disp Dispatcher, st store.Store) *Poller {
	return New(src, dedup.NewGate(st), disp, st, nil, Config{})
}

func TestPollBaseline(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	src := &stubSource{mentions: []models.Mention{
		{ID: "a", TimestampMs: 100},
		{ID: "b", TimestampMs: 300},
		{ID: "c", TimestampMs: 200},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	res := p.Poll(ctx)
	if !res.Baseline {
		t.Fatal("first poll with unset cursor must baseline")
	}
	if res.New != 0 || res.Replied != 0 {
		t.Errorf("baseline pass must not act, got %+v", res)
	}
	if len(disp.ids()) != 0 {
		t.Errorf("baseline pass must not dispatch, got %v", disp.ids())
	}
	cursor, ok, _ := st.LastProcessedTS(ctx)
	if !ok || cursor != 300 {
		t.Errorf("expected cursor baseline 300, got %d (set=%v)", cursor, ok)
	}
}

func TestPollFiltersBacklog(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 300)
	src := &stubSource{mentions: []models.Mention{
		{ID: "a", TimestampMs: 100},
		{ID: "b", TimestampMs: 300},
		{ID: "c", TimestampMs: 400},
		{ID: "d", TimestampMs: 500},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	res := p.Poll(ctx)
	if res.Total != 4 || res.New != 2 || res.Replied != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	got := disp.ids()
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("expected [c d] dispatched, got %v", got)
	}
	cursor, _, _ := st.LastProcessedTS(ctx)
	if cursor != 500 {
		t.Errorf("expected cursor 500, got %d", cursor)
	}
}

func TestPollOutOfOrderBatchAdvancesToMax(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 200)
	src := &stubSource{mentions: []models.Mention{
		{ID: "a", TimestampMs: 500},
		{ID: "b", TimestampMs: 300},
		{ID: "c", TimestampMs: 100},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	p.Poll(ctx)
	cursor, _, _ := st.LastProcessedTS(ctx)
	if cursor != 500 {
		t.Errorf("expected cursor 500 regardless of batch order, got %d", cursor)
	}
}

func TestPollSameBatchTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 300)
	src := &stubSource{mentions: []models.Mention{
		{ID: "c", TimestampMs: 400},
		{ID: "d", TimestampMs: 500},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	first := p.Poll(ctx)
	if first.Replied != 2 {
		t.Fatalf("expected 2 replies on first pass, got %+v", first)
	}
	// The identical batch again: everything is at or below the cursor now.
	second := p.Poll(ctx)
	if second.New != 0 || second.Replied != 0 {
		t.Errorf("reprocessed batch must be a no-op, got %+v", second)
	}
	if len(disp.ids()) != 2 {
		t.Errorf("expected exactly 2 dispatches total, got %v", disp.ids())
	}
}

func TestPollCursorNeverRegresses(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 600)
	src := &stubSource{mentions: []models.Mention{
		{ID: "a", TimestampMs: 500},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	p.Poll(ctx)
	if len(disp.ids()) != 0 {
		t.Errorf("older mention must not be dispatched, got %v", disp.ids())
	}
	cursor, _, _ := st.LastProcessedTS(ctx)
	if cursor != 600 {
		t.Errorf("cursor regressed to %d", cursor)
	}
}

func TestPollSkipsAlreadyHandled(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 300)
	st.MarkHandled(ctx, "c")
	src := &stubSource{mentions: []models.Mention{
		{ID: "c", TimestampMs: 400},
		{ID: "d", TimestampMs: 500},
	}}
	disp := &stubDispatcher{}
	p := newTestPoller(src, disp, st)

	res := p.Poll(ctx)
	if res.New != 1 || res.Replied != 1 {
		t.Errorf("handled mention must be filtered, got %+v", res)
	}
	if got := disp.ids(); len(got) != 1 || got[0] != "d" {
		t.Errorf("expected only d dispatched, got %v", got)
	}
	// The handled mention still advances the cursor.
	cursor, _, _ := st.LastProcessedTS(ctx)
	if cursor != 500 {
		t.Errorf("expected cursor 500, got %d", cursor)
	}
}

func TestPollFailedDispatchHoldsCursor(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	st.SetLastProcessedTS(ctx, 300)
	src := &stubSource{mentions: []models.Mention{
		{ID: "c", TimestampMs: 400},
	}}
	disp := &stubDispatcher{err: errors.New("post failed")}
	p := newTestPoller(src, disp, st)

	res := p.Poll(ctx)
	if res.Replied != 0 {
		t.Errorf("failed dispatch counted as replied: %+v", res)
	}
	cursor, _, _ := st.LastProcessedTS(ctx)
	if cursor != 300 {
		t.Errorf("failed dispatch must not advance the cursor, got %d", cursor)
	}

	// Next pass retries the same mention.
	disp.err = nil
	res = p.Poll(ctx)
	if res.Replied != 1 {
		t.Errorf("expected retry to reply, got %+v", res)
	}
	cursor, _, _ = st.LastProcessedTS(ctx)
	if cursor != 400 {
		t.Errorf("expected cursor 400 after retry, got %d", cursor)
	}
}

func TestPollRecordsPollCursorOnFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	src := &stubSource{err: errors.New("feed down")}
	p := newTestPoller(src, &stubDispatcher{}, st)

	p.Poll(ctx)
	if _, ok, _ := st.LastPollTS(ctx); !ok {
		t.Error("poll cursor must be written even when the fetch fails")
	}
	if _, ok, _ := st.LastProcessedTS(ctx); ok {
		t.Error("failed fetch must not touch the processed cursor")
	}
}

func TestPollSingleFlight(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	release := make(chan struct{})
	started := make(chan struct{})
	src := &stubSource{release: release, started: started}
	p := newTestPoller(src, &stubDispatcher{}, st)

	done := make(chan models.PollResult, 1)
	go func() { done <- p.Poll(ctx) }()
	<-started

	// While the first pass is blocked in the fetch, a second call is dropped.
	res := p.Poll(ctx)
	if !res.Skipped {
		t.Error("overlapping poll must be skipped")
	}

	close(release)
	first := <-done
	if first.Skipped {
		t.Error("first poll must run to completion")
	}

	// With the first pass finished the next call runs normally.
	if res := p.Poll(ctx); res.Skipped {
		t.Error("poll after completion must not be skipped")
	}
}

func TestEffectiveIntervalClamping(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	p := newTestPoller(&stubSource{}, &stubDispatcher{}, st)

	if got := p.EffectiveInterval(ctx); got != DefaultInterval {
		t.Errorf("no override: expected %v, got %v", DefaultInterval, got)
	}

	st.SetPollIntervalOverride(ctx, time.Millisecond)
	if got := p.EffectiveInterval(ctx); got != DefaultMinInterval {
		t.Errorf("tiny override: expected clamp to %v, got %v", DefaultMinInterval, got)
	}

	st.SetPollIntervalOverride(ctx, 999999*time.Hour)
	if got := p.EffectiveInterval(ctx); got != DefaultMaxInterval {
		t.Errorf("huge override: expected clamp to %v, got %v", DefaultMaxInterval, got)
	}

	st.SetPollIntervalOverride(ctx, 5*time.Minute)
	if got := p.EffectiveInterval(ctx); got != 5*time.Minute {
		t.Errorf("in-range override: expected 5m, got %v", got)
	}

	st.ClearPollIntervalOverride(ctx)
	if got := p.EffectiveInterval(ctx); got != DefaultInterval {
		t.Errorf("cleared override: expected %v, got %v", DefaultInterval, got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	p := newTestPoller(&stubSource{}, &stubDispatcher{}, st)

	p.Start(ctx)
	if p.CurrentInterval() != DefaultInterval {
		t.Errorf("expected installed interval %v, got %v", DefaultInterval, p.CurrentInterval())
	}
	p.Stop()
	// Stop is idempotent.
	p.Stop()
}

func TestReconcileAppliesOverrideOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	p := New(&stubSource{}, dedup.NewGate(st), &stubDispatcher{}, st, nil, Config{
		ReconcileInterval: 10 * time.Millisecond,
	})
	p.Start(ctx)
	defer p.Stop()

	if p.CurrentInterval() != DefaultInterval {
		t.Fatalf("expected installed interval %v, got %v", DefaultInterval, p.CurrentInterval())
	}

	st.SetPollIntervalOverride(ctx, 5*time.Minute)
	waitForInterval(t, p, 5*time.Minute, "override never picked up by reconcile")

	// Several more reconcile passes with an unchanged override must leave the
	// installed interval alone.
	time.Sleep(60 * time.Millisecond)
	if got := p.CurrentInterval(); got != 5*time.Minute {
		t.Errorf("unchanged override must not reinstall the timer, interval now %v", got)
	}

	// An out-of-range override is installed clamped.
	st.SetPollIntervalOverride(ctx, time.Millisecond)
	waitForInterval(t, p, DefaultMinInterval, "clamped override never picked up")

	// Clearing the override falls back to the static default.
	st.ClearPollIntervalOverride(ctx)
	waitForInterval(t, p, DefaultInterval, "cleared override never reverted to default")
}

func TestReconcileDoesNotStallTicker(t *testing.T) {
	st := store.NewInMemoryStore()
	src := &stubSource{}
	// Reconcile fires several times per poll interval; the poll timer must
	// still get a chance to fire.
	p := New(src, dedup.NewGate(st), &stubDispatcher{}, st, nil, Config{
		Interval:          50 * time.Millisecond,
		ReconcileInterval: 10 * time.Millisecond,
	})
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for src.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poll timer never fired while reconcile passes were running")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForInterval(t *testing.T, p *Poller, want time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.CurrentInterval() != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s: interval still %v, want %v", msg, p.CurrentInterval(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDisabledPollerInstallsNothing(t *testing.T) {
	ctx := context.Background()
	p := New(&stubSource{}, dedup.NewGate(store.NewInMemoryStore()), &stubDispatcher{}, store.NewInMemoryStore(), nil, Config{Disabled: true})
	p.Start(ctx)
	if p.CurrentInterval() != 0 {
		t.Error("disabled poller must not install a timer")
	}
	p.Stop()
}
