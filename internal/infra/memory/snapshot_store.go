package memory

import (
	"context"
	"sync"

	"classroom-quiz-service/internal/domain"
)

// SnapshotStore is an in-memory implementation of app.SnapshotRepository.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.State
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]domain.State),
	}
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context, key string) (domain.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.snapshots[key]
	if !ok {
		return domain.State{}, domain.ErrSnapshotNotFound
	}
	return state.Clone(), nil
}

// SaveSnapshot overwrites whatever is stored under key; the last write wins.
func (s *SnapshotStore) SaveSnapshot(_ context.Context, key string, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = state.Clone()
	return nil
}
