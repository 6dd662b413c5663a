package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"live-trivia-service/internal/domain"
)

// SnapshotStore is the in-memory SnapshotStore implementation. Values are
// deep-copied on Get and Put so callers see the same value semantics as the
// Redis-backed store, and entries expire after the configured TTL.
type SnapshotStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.Mutex
	snaps map[string]snapEntry
}

type snapEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewSnapshotStore(ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		ttl:   ttl,
		clock: time.Now,
		snaps: make(map[string]snapEntry),
	}
}

func (s *SnapshotStore) Get(_ context.Context, code string) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	entry, ok := s.snaps[code]
	if ok && s.ttl > 0 && !entry.expiresAt.After(s.clock()) {
		delete(s.snaps, code)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal(entry.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SnapshotStore) Put(_ context.Context, code string, snap *domain.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snaps[code] = snapEntry{data: data, expiresAt: s.clock().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	delete(s.snaps, code)
	s.mu.Unlock()
	return nil
}
