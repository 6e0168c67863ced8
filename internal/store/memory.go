package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a simple in-memory store, used in tests and as a harmless
// default when no backend is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	handled map[string]int64
	scalars map[string]int64
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ttl:     DefaultTTL,
		handled: make(map[string]int64),
		scalars: make(map[string]int64),
	}
}

func (s *InMemoryStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.handled[id]
	if !ok {
		return false, nil
	}
	if time.Now().UnixMilli()-ts > s.ttl.Milliseconds() {
		delete(s.handled, id)
		return false, nil
	}
	return true, nil
}

func (s *InMemoryStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled[id] = time.Now().UnixMilli()
	return nil
}

func (s *InMemoryStore) get(name string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.scalars[name]
	return v, ok, nil
}

func (s *InMemoryStore) set(name string, v int64) error {
	if v <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars[name] = v
	return nil
}

func (s *InMemoryStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	return s.get(cursorProcessed)
}

func (s *InMemoryStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	return s.set(cursorProcessed, ts)
}

func (s *InMemoryStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	return s.get(cursorPoll)
}

func (s *InMemoryStore) SetLastPollTS(ctx context.Context, ts int64) error {
	return s.set(cursorPoll, ts)
}

func (s *InMemoryStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	ms, ok, err := s.get(cursorIntervalOverride)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

func (s *InMemoryStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval override must be positive, got %v", d)
	}
	return s.set(cursorIntervalOverride, d.Milliseconds())
}

func (s *InMemoryStore) ClearPollIntervalOverride(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scalars, cursorIntervalOverride)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
