package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"classroom-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Backend is the durable repository a CachedRepository sits in front of.
type Backend interface {
	LoadSnapshot(ctx context.Context, key string) (domain.State, error)
	SaveSnapshot(ctx context.Context, key string, state domain.State) error
}

// CachedRepository caches snapshots with TTL to avoid repeated backend reads.
// Writes go through to the backend and refresh the cache.
type CachedRepository struct {
	backend Backend
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand
	rndMu   sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	state     domain.State
	expiresAt time.Time
}

func NewCachedRepository(backend Backend, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		backend: backend,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedSnapshot),
	}
}

func (r *CachedRepository) LoadSnapshot(ctx context.Context, key string) (domain.State, error) {
	if state, ok := r.cached(key); ok {
		return state, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if state, ok := r.cached(key); ok {
			return state, nil
		}

		state, err := r.backend.LoadSnapshot(ctx, key)
		if err != nil {
			return domain.State{}, err
		}
		r.put(key, state)
		return state, nil
	})
	if err != nil {
		return domain.State{}, err
	}
	return result.(domain.State).Clone(), nil
}

func (r *CachedRepository) SaveSnapshot(ctx context.Context, key string, state domain.State) error {
	if err := r.backend.SaveSnapshot(ctx, key, state); err != nil {
		r.mu.Lock()
		delete(r.cache, key)
		r.mu.Unlock()
		return err
	}
	r.put(key, state)
	return nil
}

func (r *CachedRepository) cached(key string) (domain.State, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		return entry.state.Clone(), true
	}
	return domain.State{}, false
}

func (r *CachedRepository) put(key string, state domain.State) {
	if r.ttl <= 0 {
		return
	}
	expires := r.clock().Add(r.ttlWithJitter())
	r.mu.Lock()
	r.cache[key] = cachedSnapshot{state: state.Clone(), expiresAt: expires}
	r.mu.Unlock()
}

func (r *CachedRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
