// Package store: local JSON-file fallback tier.
//
// The file tier is the last line of defense when the remote store is
// unreachable. It persists a single JSON document {"items": {id: epochMs}}
// rewritten wholesale on every mutation; expiry and the entry-count ceiling
// are both enforced by a prune pass on every read/write. Cursors and the
// interval override are held in memory only, mirroring how the bot behaves
// with its remote store down; keeping them here lets the poller run against
// this tier alone in tests and degraded deployments.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileSnapshot is the persisted document layout.
type fileSnapshot struct {
	Items map[string]int64 `json:"items"`
}

// FileStore is a Store backed by a local JSON snapshot.
type FileStore struct {
	path       string
	ttl        time.Duration
	maxEntries int

	mu sync.Mutex
	// in-memory scalars, lost on restart
	processedTS   int64
	processedSet  bool
	pollTS        int64
	pollSet       bool
	overrideMs    int64
	overrideIsSet bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store at the configured path.
func NewFileStore(opts ...Option) (*FileStore, error) {
	cfg := applyOptions(opts)
	if cfg.FilePath == "" {
		slog.Error("FileStore path not set")
		return nil, fmt.Errorf("file store path not set")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		slog.Error("FileStore failed to create snapshot directory", "error", err, "path", cfg.FilePath)
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	slog.Debug("FileStore created", "path", cfg.FilePath, "ttl", cfg.TTL, "max_entries", cfg.MaxEntries)
	return &FileStore{path: cfg.FilePath, ttl: cfg.TTL, maxEntries: cfg.MaxEntries}, nil
}

// load reads the snapshot from disk. A missing or corrupt file yields an
// empty snapshot rather than an error.
func (s *FileStore) load() fileSnapshot {
	snap := fileSnapshot{Items: make(map[string]int64)}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("FileStore.load: snapshot unreadable, starting empty", "error", err, "path", s.path)
		}
		return snap
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		slog.Warn("FileStore.load: snapshot corrupt, starting empty", "error", err, "path", s.path)
		return fileSnapshot{Items: make(map[string]int64)}
	}
	if snap.Items == nil {
		snap.Items = make(map[string]int64)
	}
	return snap
}

// save rewrites the snapshot wholesale.
func (s *FileStore) save(snap fileSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// prune drops expired markers and, if the snapshot still exceeds the entry
// ceiling, evicts the oldest markers until it fits.
func (s *FileStore) prune(snap fileSnapshot) {
	now := time.Now().UnixMilli()
	for id, ts := range snap.Items {
		if ts <= 0 || now-ts > s.ttl.Milliseconds() {
			delete(snap.Items, id)
		}
	}
	if len(snap.Items) <= s.maxEntries {
		return
	}
	ids := make([]string, 0, len(snap.Items))
	for id := range snap.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return snap.Items[ids[i]] < snap.Items[ids[j]] })
	for _, id := range ids[:len(ids)-s.maxEntries] {
		delete(snap.Items, id)
	}
}

func (s *FileStore) IsHandled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.load()
	s.prune(snap)
	_, ok := snap.Items[id]
	slog.Debug("FileStore.IsHandled", "id", id, "handled", ok)
	return ok, nil
}

func (s *FileStore) MarkHandled(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.load()
	s.prune(snap)
	snap.Items[id] = time.Now().UnixMilli()
	if err := s.save(snap); err != nil {
		slog.Error("FileStore.MarkHandled save failed", "error", err, "id", id)
		return err
	}
	slog.Debug("FileStore.MarkHandled succeeded", "id", id, "entries", len(snap.Items))
	return nil
}

func (s *FileStore) LastProcessedTS(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processedTS, s.processedSet, nil
}

func (s *FileStore) SetLastProcessedTS(ctx context.Context, ts int64) error {
	if ts <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedTS = ts
	s.processedSet = true
	return nil
}

func (s *FileStore) LastPollTS(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollTS, s.pollSet, nil
}

func (s *FileStore) SetLastPollTS(ctx context.Context, ts int64) error {
	if ts <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollTS = ts
	s.pollSet = true
	return nil
}

func (s *FileStore) PollIntervalOverride(ctx context.Context) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.overrideIsSet {
		return 0, false, nil
	}
	return time.Duration(s.overrideMs) * time.Millisecond, true, nil
}

func (s *FileStore) SetPollIntervalOverride(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval override must be positive, got %v", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideMs = d.Milliseconds()
	s.overrideIsSet = true
	return nil
}

func (s *FileStore) ClearPollIntervalOverride(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideIsSet = false
	s.overrideMs = 0
	return nil
}

// Close is a no-op for the file tier.
func (s *FileStore) Close() error { return nil }

// EntryCount reports the number of live markers in the snapshot (for tests
// and diagnostics).
func (s *FileStore) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.load()
	s.prune(snap)
	return len(snap.Items)
}
