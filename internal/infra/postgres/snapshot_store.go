package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SnapshotStore keeps the quiz state as JSONB in the quiz_snapshots table.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, key string) (domain.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_snapshots WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.State{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("load snapshot: %w", err)
	}
	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.State{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return state, nil
}

// SaveSnapshot upserts the row for key; the last write wins.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, key string, state domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_snapshots (key, data, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
