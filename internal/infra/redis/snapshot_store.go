package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore persists the quiz state as one JSON document per key:
//
//	SET quiz:{key}:state {json}
//
// A zero ttl keeps the record forever. Concurrent writers are not
// reconciled; the last SET wins.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, key string) (domain.State, error) {
	raw, err := s.client.Get(ctx, s.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.State{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("redis get snapshot: %w", err)
	}
	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.State{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return state, nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, key string, state domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.stateKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) stateKey(key string) string {
	return "quiz:" + key + ":state"
}
