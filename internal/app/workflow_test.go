package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ana = domain.Student{Name: "Ana", Age: "12", School: "EMEF Centro"}

func newTestWorkflow(t *testing.T, questions ...domain.Question) *app.Workflow {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewSnapshotStore()
	if len(questions) > 0 {
		require.NoError(t, repo.SaveSnapshot(ctx, app.DefaultStorageKey, domain.State{Questions: questions}))
	}
	store := app.NewStore(repo, "")
	require.NoError(t, store.Load(ctx))

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	seq := 0
	return app.NewWorkflowWithClock(store,
		func() time.Time { return now },
		func() string { seq++; return fmt.Sprintf("ans-%d", seq) },
	)
}

func activeQuestion(id, correct string) domain.Question {
	return domain.Question{ID: id, Description: "Question " + id, Options: []string{correct, "other"}, CorrectAnswer: correct, IsActive: true}
}

func TestNextQuestionFollowsCatalogOrder(t *testing.T) {
	inactive := activeQuestion("2", "b")
	inactive.IsActive = false
	w := newTestWorkflow(t, activeQuestion("1", "a"), inactive, activeQuestion("3", "c"))

	next, ok := w.NextQuestion(ana)
	require.True(t, ok)
	assert.Equal(t, "1", next.ID)

	_, err := w.SubmitNext(context.Background(), ana, "a")
	require.NoError(t, err)

	next, ok = w.NextQuestion(ana)
	require.True(t, ok)
	assert.Equal(t, "3", next.ID, "inactive questions are skipped")
}

func TestNextQuestionNoneWhenAllAnswered(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "a"), activeQuestion("2", "b"))
	ctx := context.Background()

	_, err := w.SubmitNext(ctx, ana, "a")
	require.NoError(t, err)
	outcome, err := w.SubmitNext(ctx, ana, "wrong")
	require.NoError(t, err)
	assert.Nil(t, outcome.Next)

	_, ok := w.NextQuestion(ana)
	assert.False(t, ok)

	_, err = w.SubmitNext(ctx, ana, "a")
	assert.ErrorIs(t, err, domain.ErrNoQuestionAvailable)
	assert.Len(t, w.Store().Snapshot().StudentAnswers, 2)
}

func TestSubmitRecordsAnswer(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "Brasília"), activeQuestion("2", "4"))

	outcome, err := w.Submit(context.Background(), ana, "1", "Brasília")
	require.NoError(t, err)
	assert.True(t, outcome.Correct)
	assert.Equal(t, "ans-1", outcome.Answer.ID)
	assert.Equal(t, "Ana", outcome.Answer.StudentName)
	assert.Equal(t, "12", outcome.Answer.StudentAge)
	assert.Equal(t, "EMEF Centro", outcome.Answer.StudentSchool)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), outcome.Answer.Timestamp)
	require.NotNil(t, outcome.Next)
	assert.Equal(t, "2", outcome.Next.ID)

	log := w.AnsweredQuestions(ana)
	require.Len(t, log, 1)
	assert.Equal(t, "1", log[0].QuestionID)
}

func TestSubmitGradesWithExactEquality(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "Brasília"))
	outcome, err := w.SubmitNext(context.Background(), ana, "brasília")
	require.NoError(t, err)
	assert.False(t, outcome.Correct)
}

func TestSubmitRejectsEmptyAnswerBeforeStore(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "a"))
	_, err := w.SubmitNext(context.Background(), ana, "")
	assert.ErrorIs(t, err, domain.ErrEmptyAnswer)
	assert.Empty(t, w.Store().Snapshot().StudentAnswers)
}

func TestSubmitRejectsIncompleteStudent(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "a"))
	_, err := w.SubmitNext(context.Background(), domain.Student{Name: "Ana"}, "a")
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestSubmitRejectsUnknownInactiveAndRepeatedQuestions(t *testing.T) {
	inactive := activeQuestion("2", "b")
	inactive.IsActive = false
	w := newTestWorkflow(t, activeQuestion("1", "a"), inactive, activeQuestion("3", "c"))
	ctx := context.Background()

	_, err := w.Submit(ctx, ana, "99", "a")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	_, err = w.Submit(ctx, ana, "2", "b")
	assert.ErrorIs(t, err, domain.ErrQuestionInactive)

	_, err = w.Submit(ctx, ana, "1", "a")
	require.NoError(t, err)
	_, err = w.Submit(ctx, ana, "1", "a")
	assert.ErrorIs(t, err, domain.ErrAlreadyAnswered)

	assert.Len(t, w.Store().Snapshot().StudentAnswers, 1)
}

func TestAuthorQuestionValidatesAndCreatesInactive(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	_, err := w.AuthorQuestion(ctx, domain.QuestionDraft{Description: "x", Options: []string{"a", "b"}, CorrectAnswer: "c"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	q, err := w.AuthorQuestion(ctx, domain.QuestionDraft{Description: "Quanto é 3 x 3?", Options: []string{"6", "9"}, CorrectAnswer: "9"})
	require.NoError(t, err)
	assert.Equal(t, "3", q.ID)
	assert.False(t, q.IsActive)
	assert.Contains(t, q.Options, q.CorrectAnswer)

	snap := w.Store().Snapshot()
	require.Len(t, snap.Questions, 3)
	assert.Equal(t, q.ID, snap.Questions[2].ID)
}

func TestSummaries(t *testing.T) {
	w := newTestWorkflow(t, activeQuestion("1", "a"), activeQuestion("2", "b"), activeQuestion("3", "c"))
	ctx := context.Background()
	bia := domain.Student{Name: "Bia", Age: "11", School: "EMEF Centro"}

	_, _ = w.SubmitNext(ctx, ana, "a")
	_, _ = w.SubmitNext(ctx, ana, "wrong")
	_, _ = w.SubmitNext(ctx, bia, "a")
	_, _ = w.SubmitNext(ctx, bia, "b")

	s := w.StudentSummary(ana)
	assert.Equal(t, 2, s.Answered)
	assert.Equal(t, 1, s.Correct)
	assert.Equal(t, 50, s.Accuracy)
	assert.Equal(t, 2, s.Rank)
	assert.Equal(t, 3, s.Available)
	assert.Equal(t, 1, s.Remaining)
	assert.True(t, s.HasNextQuestion)

	newcomer := w.StudentSummary(domain.Student{Name: "Caio", Age: "10", School: "X"})
	assert.Equal(t, 0, newcomer.Rank)
	assert.Equal(t, 0, newcomer.Accuracy)

	admin := w.AdminSummary()
	assert.Equal(t, domain.AdminSummary{TotalQuestions: 3, ActiveQuestions: 3, TotalStudents: 2, TotalAnswers: 4}, admin)

	lb := w.Leaderboard("Ana")
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "Bia", lb.Entries[0].Name)
	assert.True(t, lb.Entries[1].Highlight)
}
