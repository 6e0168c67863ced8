package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// brokenStore simulates an unreachable remote tier.
type brokenStore struct{}

var errDown = errors.New("store unreachable")

func (brokenStore) IsHandled(ctx context.Context, id string) (bool, error) { return false, errDown }
func (brokenStore) MarkHandled(ctx context.Context, id string) error       { return errDown }
func (brokenStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	return 0, false, errDown
}
func (brokenStore) SetLastProcessedTS(ctx context.Context, ts int64) error { return errDown }
func (brokenStore) LastPollTS(ctx context.Context) (int64, bool, error)    { return 0, false, errDown }
func (brokenStore) SetLastPollTS(ctx context.Context, ts int64) error      { return errDown }
func (brokenStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	return 0, false, errDown
}
func (brokenStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	return errDown
}
func (brokenStore) ClearPollIntervalOverride(ctx context.Context) error { return nil }
func (brokenStore) Close() error                                        { return nil }

func TestFallbackStoreDegradesToFile(t *testing.T) {
	ctx := context.Background()
	file, err := NewFileStore(WithFilePath(filepath.Join(t.TempDir(), "handled.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewFallbackStore(brokenStore{}, file)

	// Marker write falls through to the file tier and never errors.
	if err := s.MarkHandled(ctx, "0xabc"); err != nil {
		t.Fatalf("MarkHandled surfaced a store failure: %v", err)
	}
	handled, err := s.IsHandled(ctx, "0xabc")
	if err != nil {
		t.Fatalf("IsHandled surfaced a store failure: %v", err)
	}
	if !handled {
		t.Error("marker written via fallback tier not readable via fallback tier")
	}
	if got := file.EntryCount(); got != 1 {
		t.Errorf("expected marker in file tier, got %d entries", got)
	}
}

func TestFallbackStoreFailsOpen(t *testing.T) {
	ctx := context.Background()
	// Both tiers broken: reads fail open to "not handled", writes are dropped.
	s := NewFallbackStore(brokenStore{}, brokenStore{})
	handled, err := s.IsHandled(ctx, "0xabc")
	if err != nil {
		t.Fatalf("IsHandled must never surface store failures, got %v", err)
	}
	if handled {
		t.Error("fail-open read must report not handled")
	}
	if err := s.MarkHandled(ctx, "0xabc"); err != nil {
		t.Fatalf("MarkHandled must never surface store failures, got %v", err)
	}
}

func TestFallbackStoreCursorsHaveNoFallbackTier(t *testing.T) {
	ctx := context.Background()
	file, err := NewFileStore(WithFilePath(filepath.Join(t.TempDir(), "handled.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewFallbackStore(brokenStore{}, file)

	// With a broken primary, cursor writes are dropped, not redirected.
	if err := s.SetLastProcessedTS(ctx, 12345); err != nil {
		t.Fatalf("cursor write must be swallowed, got %v", err)
	}
	if _, ok, _ := s.LastProcessedTS(ctx); ok {
		t.Error("cursor read after dropped write must report unset")
	}
	if _, ok, _ := file.LastProcessedTS(ctx); ok {
		t.Error("cursor write must not be redirected to the fallback tier")
	}
}

func TestFallbackStoreNilPrimary(t *testing.T) {
	ctx := context.Background()
	file, err := NewFileStore(WithFilePath(filepath.Join(t.TempDir(), "handled.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewFallbackStore(nil, file)

	if err := s.MarkHandled(ctx, "0xdef"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handled, _ := s.IsHandled(ctx, "0xdef")
	if !handled {
		t.Error("nil primary should route markers to the fallback tier")
	}
	// Scalars live in the fallback tier when there is no primary.
	if err := s.SetLastProcessedTS(ctx, 777); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, _ := s.LastProcessedTS(ctx)
	if !ok || v != 777 {
		t.Errorf("expected cursor 777, got %d (set=%v)", v, ok)
	}
	// Invalid override values still surface to the admin surface.
	if err := s.SetPollIntervalOverride(ctx, -time.Second); err == nil {
		t.Error("invalid override must be rejected")
	}
}
