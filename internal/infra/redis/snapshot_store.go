package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-trivia-service/internal/domain"
)

// SnapshotStore keeps live session snapshots as JSON values under
// game:<code>, bounded by a TTL so abandoned sessions age out of the cache.
// Sessions are short-lived, so the TTL is hours, not days.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Get(ctx context.Context, code string) (*domain.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("snapshot get: %w", err)
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Put(ctx context.Context, code string, snap *domain.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(code), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot put: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("snapshot delete: %w", err)
	}
	return nil
}

func (s *SnapshotStore) key(code string) string {
	return "game:" + code
}
