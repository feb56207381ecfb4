package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"classroom-quiz-service/internal/domain"
)

// DefaultStorageKey names the single persisted record.
const DefaultStorageKey = "quiz-storage"

// SnapshotRepository abstracts where the persisted state lives (in-memory, Redis, Postgres).
type SnapshotRepository interface {
	LoadSnapshot(ctx context.Context, key string) (domain.State, error)
	SaveSnapshot(ctx context.Context, key string, state domain.State) error
}

// Store is the authoritative holder of the question catalog and the answer log.
// Every mutation replaces the current snapshot with a modified copy, persists it
// and notifies subscribers. Snapshots handed out must be treated as read-only.
type Store struct {
	repo SnapshotRepository
	key  string

	mu          sync.RWMutex
	state       domain.State
	unsaved     bool
	subscribers map[chan domain.State]struct{}
}

func NewStore(repo SnapshotRepository, key string) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Store{
		repo:        repo,
		key:         key,
		state:       SeedState(),
		subscribers: make(map[chan domain.State]struct{}),
	}
}

// SeedState is the catalog a fresh installation starts with.
func SeedState() domain.State {
	return domain.State{
		Questions: []domain.Question{
			{
				ID:            "1",
				Description:   "Qual é a capital do Brasil?",
				ImageURL:      "/placeholder.svg?height=200&width=300",
				Options:       []string{"São Paulo", "Rio de Janeiro", "Brasília", "Belo Horizonte"},
				CorrectAnswer: "Brasília",
				IsActive:      true,
			},
			{
				ID:            "2",
				Description:   "Quanto é 2 + 2?",
				Options:       []string{"3", "4", "5", "6"},
				CorrectAnswer: "4",
				IsActive:      false,
			},
		},
		StudentAnswers:  []domain.StudentAnswer{},
		NextQuestionSeq: 3,
	}
}

// Load hydrates the store from the repository, seeding it when nothing was persisted yet.
func (s *Store) Load(ctx context.Context) error {
	state, err := s.repo.LoadSnapshot(ctx, s.key)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		state = SeedState()
		if err := s.repo.SaveSnapshot(ctx, s.key, state); err != nil {
			return fmt.Errorf("persist seed snapshot: %w", err)
		}
		slog.Info("seeded quiz storage", "key", s.key, "questions", len(state.Questions))
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	}
	normalize(&state)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.broadcastLocked()
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// AddQuestion appends a question as given. Ids are not checked for duplicates.
func (s *Store) AddQuestion(ctx context.Context, q domain.Question) error {
	_, err := s.update(ctx, func(st *domain.State) (bool, error) {
		st.Questions = append(st.Questions, q)
		advanceSeq(st, q.ID)
		return true, nil
	})
	return err
}

// CreateQuestion assigns the next id from the persisted counter and appends
// the question built for it, in a single mutation.
func (s *Store) CreateQuestion(ctx context.Context, build func(id string) domain.Question) (domain.Question, error) {
	var created domain.Question
	_, err := s.update(ctx, func(st *domain.State) (bool, error) {
		if st.NextQuestionSeq < 1 {
			st.NextQuestionSeq = 1
		}
		created = build(strconv.Itoa(st.NextQuestionSeq))
		st.Questions = append(st.Questions, created)
		advanceSeq(st, created.ID)
		return true, nil
	})
	return created, err
}

// RemoveQuestion deletes the question with id. Answers referencing it are kept.
func (s *Store) RemoveQuestion(ctx context.Context, id string) error {
	_, err := s.update(ctx, func(st *domain.State) (bool, error) {
		kept := st.Questions[:0]
		for _, q := range st.Questions {
			if q.ID != id {
				kept = append(kept, q)
			}
		}
		changed := len(kept) != len(st.Questions)
		st.Questions = kept
		return changed, nil
	})
	return err
}

// ToggleQuestionActive flips the visibility of the question with id; unknown ids are ignored.
func (s *Store) ToggleQuestionActive(ctx context.Context, id string) error {
	_, err := s.update(ctx, func(st *domain.State) (bool, error) {
		for i := range st.Questions {
			if st.Questions[i].ID == id {
				st.Questions[i].IsActive = !st.Questions[i].IsActive
				return true, nil
			}
		}
		return false, nil
	})
	return err
}

// AddStudentAnswer appends to the answer log unconditionally.
func (s *Store) AddStudentAnswer(ctx context.Context, answer domain.StudentAnswer) error {
	_, err := s.update(ctx, func(st *domain.State) (bool, error) {
		st.StudentAnswers = append(st.StudentAnswers, answer)
		return true, nil
	})
	return err
}

// Subscribe returns a channel that receives every new snapshot, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Store) Subscribe() (<-chan domain.State, func()) {
	ch := make(chan domain.State, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.state
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// update applies fn to a copy of the current state. When fn reports a change
// the copy becomes the new snapshot, is broadcast and persisted. A failed
// write still leaves the new snapshot in place.
func (s *Store) update(ctx context.Context, fn func(*domain.State) (bool, error)) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	changed, err := fn(&next)
	if err != nil {
		return s.state, err
	}
	if !changed {
		return s.state, nil
	}
	s.state = next
	s.broadcastLocked()

	if err := s.repo.SaveSnapshot(ctx, s.key, next); err != nil {
		s.unsaved = true
		slog.Error("persist snapshot failed", "key", s.key, "err", err)
		return next, fmt.Errorf("%w: %w", domain.ErrNotPersisted, err)
	}
	s.unsaved = false
	return next, nil
}

// Refresh re-reads the repository and adopts the stored snapshot when it
// differs from the current one, so stores sharing a backend converge.
// A snapshot whose last write failed is kept until a write succeeds.
func (s *Store) Refresh(ctx context.Context) error {
	stored, err := s.repo.LoadSnapshot(ctx, s.key)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}
	normalize(&stored)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsaved || sameState(s.state, stored) {
		return nil
	}
	s.state = stored
	s.broadcastLocked()
	slog.Debug("adopted stored snapshot", "key", s.key, "answers", len(stored.StudentAnswers))
	return nil
}

// Sync calls Refresh every interval until ctx is done.
func (s *Store) Sync(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				slog.Warn("snapshot refresh failed", "key", s.key, "err", err)
			}
		}
	}
}

// sameState compares the persisted form, so decoded timestamps match their originals.
func sameState(a, b domain.State) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func (s *Store) broadcastLocked() {
	for ch := range s.subscribers {
		select {
		case ch <- s.state:
		default:
			// Drop the stale snapshot so slow readers never block writers.
			select {
			case <-ch:
			default:
			}
			ch <- s.state
		}
	}
}

func normalize(st *domain.State) {
	if st.Questions == nil {
		st.Questions = []domain.Question{}
	}
	if st.StudentAnswers == nil {
		st.StudentAnswers = []domain.StudentAnswer{}
	}
	for _, q := range st.Questions {
		advanceSeq(st, q.ID)
	}
	if st.NextQuestionSeq < 1 {
		st.NextQuestionSeq = 1
	}
}

// advanceSeq keeps the counter strictly above any numeric id in the catalog.
func advanceSeq(st *domain.State, id string) {
	if n, err := strconv.Atoi(id); err == nil && n >= st.NextQuestionSeq {
		st.NextQuestionSeq = n + 1
	}
}
