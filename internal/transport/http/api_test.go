package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewAPI(newTestWorkflow(t)).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const anaQuery = "?name=Ana&age=12&school=EMEF"

func TestAPIAuthoringLifecycle(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, http.MethodPost, server.URL+"/api/questions", domain.QuestionDraft{
		Description: "Quanto é 3 x 3?", Options: []string{"6", "9"}, CorrectAnswer: "9",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Question](t, resp)
	assert.Equal(t, "3", created.ID)
	assert.False(t, created.IsActive)

	resp = do(t, http.MethodPost, server.URL+"/api/questions/3/toggle", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	active := decode[[]map[string]any](t, do(t, http.MethodGet, server.URL+"/api/questions/active", nil))
	require.Len(t, active, 2)
	assert.Equal(t, "3", active[1]["id"])
	assert.NotContains(t, active[1], "correctAnswer")

	resp = do(t, http.MethodDelete, server.URL+"/api/questions/3", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, server.URL+"/api/questions/3", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "removing twice is a no-op")

	all := decode[[]domain.Question](t, do(t, http.MethodGet, server.URL+"/api/questions", nil))
	assert.Len(t, all, 2)
}

func TestAPIRejectsInvalidDraft(t *testing.T) {
	server := newTestServer(t)
	resp := do(t, http.MethodPost, server.URL+"/api/questions", domain.QuestionDraft{
		Description: "x", Options: []string{"a", "b"}, CorrectAnswer: "z",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIStudentFlow(t *testing.T) {
	server := newTestServer(t)
	student := domain.Student{Name: "Ana", Age: "12", School: "EMEF"}

	next := decode[map[string]any](t, do(t, http.MethodGet, server.URL+"/api/students/next"+anaQuery, nil))
	assert.Equal(t, "1", next["id"])

	resp := do(t, http.MethodPost, server.URL+"/api/answers", map[string]any{"student": student, "answer": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, server.URL+"/api/answers", map[string]any{"student": student, "questionId": "1", "answer": "4"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decode[submitResponse](t, resp)
	assert.True(t, result.Correct)
	assert.Nil(t, result.Next)

	resp = do(t, http.MethodGet, server.URL+"/api/students/next"+anaQuery, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, server.URL+"/api/answers", map[string]any{"student": student, "answer": "4"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	summary := decode[domain.StudentSummary](t, do(t, http.MethodGet, server.URL+"/api/students/summary"+anaQuery, nil))
	assert.Equal(t, 1, summary.Correct)
	assert.Equal(t, 1, summary.Rank)

	lb := decode[domain.Leaderboard](t, do(t, http.MethodGet, server.URL+"/api/leaderboard?student=Ana", nil))
	require.Len(t, lb.Entries, 1)
	assert.True(t, lb.Entries[0].Highlight)

	admin := decode[domain.AdminSummary](t, do(t, http.MethodGet, server.URL+"/api/admin/summary", nil))
	assert.Equal(t, domain.AdminSummary{TotalQuestions: 2, ActiveQuestions: 1, TotalStudents: 1, TotalAnswers: 1}, admin)
}

func TestAPIRequiresStudentProfile(t *testing.T) {
	server := newTestServer(t)
	resp := do(t, http.MethodGet, server.URL+"/api/students/next?name=Ana", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2, 0)
	handler := RateLimit(limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "budgets are per client address")
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := NewIPRateLimiter(0, 0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("10.0.0.1"))
	}
}

func TestEvictIdleVisitors(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(60, 1, time.Minute)
	limiter.now = func() time.Time { return now }
	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")

	now = now.Add(30 * time.Second)
	limiter.Allow("10.0.0.2")
	now = now.Add(45 * time.Second)
	limiter.evictIdle()
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.visitors, "10.0.0.1")
	assert.Contains(t, limiter.visitors, "10.0.0.2")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrEmptyAnswer))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrQuestionNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrNoQuestionAvailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.True(t, strings.Contains(domain.ErrNoQuestionAvailable.Error(), "no question"))
}

func TestAPIWriteFailureStillReportsAppliedChange(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{SnapshotStore: memory.NewSnapshotStore()}
	store := app.NewStore(repo, "")
	require.NoError(t, store.Load(ctx))
	workflow := app.NewWorkflow(store)

	mux := http.NewServeMux()
	NewAPI(workflow).Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	repo.fail.Store(true)

	resp := do(t, http.MethodPost, server.URL+"/api/questions/2/toggle", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	q, ok := store.Snapshot().FindQuestion("2")
	require.True(t, ok)
	assert.True(t, q.IsActive, "toggle applied in memory")

	resp = do(t, http.MethodDelete, server.URL+"/api/questions/2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok = store.Snapshot().FindQuestion("2")
	assert.False(t, ok)

	resp = do(t, http.MethodPost, server.URL+"/api/answers", map[string]any{
		"student": domain.Student{Name: "Ana", Age: "12", School: "EMEF"}, "answer": "Brasília",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Reads keep serving the in-memory snapshot while storage lags behind.
	lb := decode[domain.Leaderboard](t, do(t, http.MethodGet, server.URL+"/api/leaderboard", nil))
	assert.Len(t, lb.Entries, 1)
}

func TestAPIReadsAdoptOtherInstancesWrites(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSnapshotStore()
	local := app.NewStore(repo, "")
	require.NoError(t, local.Load(ctx))
	remote := app.NewStore(repo, "")
	require.NoError(t, remote.Load(ctx))

	server := httptest.NewServer(func() http.Handler {
		mux := http.NewServeMux()
		NewAPI(app.NewWorkflow(local)).Register(mux)
		return mux
	}())
	defer server.Close()

	require.NoError(t, remote.AddStudentAnswer(ctx, domain.StudentAnswer{ID: "a1", StudentName: "Bia", QuestionID: "1", Answer: "Brasília"}))

	lb := decode[domain.Leaderboard](t, do(t, http.MethodGet, server.URL+"/api/leaderboard", nil))
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "Bia", lb.Entries[0].Name)
}

var errStorageDown = errors.New("storage down")

type failingRepo struct {
	*memory.SnapshotStore
	fail atomic.Bool
}

func (r *failingRepo) SaveSnapshot(ctx context.Context, key string, state domain.State) error {
	if r.fail.Load() {
		return errStorageDown
	}
	return r.SnapshotStore.SaveSnapshot(ctx, key, state)
}
