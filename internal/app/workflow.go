package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// Workflow contains the student and authoring use cases on top of a Store.
type Workflow struct {
	store *Store
	now   func() time.Time
	newID func() string
}

func NewWorkflow(store *Store) *Workflow {
	return &Workflow{store: store, now: time.Now, newID: uuid.NewString}
}

// NewWorkflowWithClock is test-only for deterministic timestamps and ids.
func NewWorkflowWithClock(store *Store, now func() time.Time, newID func() string) *Workflow {
	return &Workflow{store: store, now: now, newID: newID}
}

// Store exposes the underlying state container.
func (w *Workflow) Store() *Store {
	return w.store
}

// AvailableQuestions returns the active questions in catalog order.
func (w *Workflow) AvailableQuestions() []domain.Question {
	return availableQuestions(w.store.Snapshot())
}

// AnsweredQuestions returns the student's answers in log order.
func (w *Workflow) AnsweredQuestions(student domain.Student) []domain.StudentAnswer {
	return answeredQuestions(w.store.Snapshot(), student.Name)
}

// NextQuestion returns the first active question the student has not answered.
func (w *Workflow) NextQuestion(student domain.Student) (domain.Question, bool) {
	return nextQuestion(w.store.Snapshot(), student.Name)
}

// Submit records the student's answer to questionID. An empty questionID
// means the student's current next question.
func (w *Workflow) Submit(ctx context.Context, student domain.Student, questionID, chosen string) (domain.AnswerOutcome, error) {
	if err := student.Validate(); err != nil {
		return domain.AnswerOutcome{}, err
	}
	if chosen == "" {
		return domain.AnswerOutcome{}, domain.ErrEmptyAnswer
	}

	var (
		answer   domain.StudentAnswer
		question domain.Question
		recorded bool
	)
	next, err := w.store.update(ctx, func(st *domain.State) (bool, error) {
		pending, ok := nextQuestion(*st, student.Name)
		if !ok {
			return false, domain.ErrNoQuestionAvailable
		}
		id := questionID
		if id == "" {
			id = pending.ID
		}
		q, found := st.FindQuestion(id)
		if !found {
			return false, domain.ErrQuestionNotFound
		}
		if !q.IsActive {
			return false, domain.ErrQuestionInactive
		}
		if hasAnswered(*st, student.Name, id) {
			return false, domain.ErrAlreadyAnswered
		}
		question = q
		answer = domain.StudentAnswer{
			ID:            w.newID(),
			StudentName:   student.Name,
			StudentAge:    student.Age,
			StudentSchool: student.School,
			QuestionID:    q.ID,
			Answer:        chosen,
			Timestamp:     w.now(),
		}
		st.StudentAnswers = append(st.StudentAnswers, answer)
		recorded = true
		return true, nil
	})
	if !recorded {
		return domain.AnswerOutcome{}, err
	}

	outcome := domain.AnswerOutcome{Answer: answer, Correct: question.IsCorrect(chosen)}
	if q, ok := nextQuestion(next, student.Name); ok {
		outcome.Next = &q
	}
	return outcome, err
}

// SubmitNext answers the student's current next question.
func (w *Workflow) SubmitNext(ctx context.Context, student domain.Student, chosen string) (domain.AnswerOutcome, error) {
	return w.Submit(ctx, student, "", chosen)
}

// AuthorQuestion validates a draft and adds it to the catalog, inactive, with a fresh id.
func (w *Workflow) AuthorQuestion(ctx context.Context, draft domain.QuestionDraft) (domain.Question, error) {
	if err := draft.Validate(); err != nil {
		return domain.Question{}, err
	}
	return w.store.CreateQuestion(ctx, draft.Question)
}

// Leaderboard ranks all students; currentStudent only affects highlighting.
func (w *Workflow) Leaderboard(currentStudent string) domain.Leaderboard {
	return BuildLeaderboard(w.store.Snapshot(), currentStudent, w.now())
}

// StudentSummary collects the numbers shown on the student dashboard.
func (w *Workflow) StudentSummary(student domain.Student) domain.StudentSummary {
	return studentSummary(w.store.Snapshot(), student)
}

// AdminSummary collects the numbers shown on the teacher dashboard.
func (w *Workflow) AdminSummary() domain.AdminSummary {
	st := w.store.Snapshot()
	names := make(map[string]struct{})
	for _, a := range st.StudentAnswers {
		names[a.StudentName] = struct{}{}
	}
	return domain.AdminSummary{
		TotalQuestions:  len(st.Questions),
		ActiveQuestions: len(availableQuestions(st)),
		TotalStudents:   len(names),
		TotalAnswers:    len(st.StudentAnswers),
	}
}

func studentSummary(st domain.State, student domain.Student) domain.StudentSummary {
	answered := answeredQuestions(st, student.Name)
	correct := 0
	for _, a := range answered {
		if q, ok := st.FindQuestion(a.QuestionID); ok && q.IsCorrect(a.Answer) {
			correct++
		}
	}
	available := availableQuestions(st)
	remaining := 0
	for _, q := range available {
		if !hasAnswered(st, student.Name, q.ID) {
			remaining++
		}
	}
	return domain.StudentSummary{
		Student:         student,
		Answered:        len(answered),
		Correct:         correct,
		Accuracy:        domain.Percent(correct, len(answered)),
		Rank:            RankOf(Rank(st.Questions, st.StudentAnswers), student.Name),
		Available:       len(available),
		Remaining:       remaining,
		HasNextQuestion: remaining > 0,
	}
}

func availableQuestions(st domain.State) []domain.Question {
	out := make([]domain.Question, 0, len(st.Questions))
	for _, q := range st.Questions {
		if q.IsActive {
			out = append(out, q)
		}
	}
	return out
}

func answeredQuestions(st domain.State, name string) []domain.StudentAnswer {
	out := make([]domain.StudentAnswer, 0)
	for _, a := range st.StudentAnswers {
		if a.StudentName == name {
			out = append(out, a)
		}
	}
	return out
}

func hasAnswered(st domain.State, name, questionID string) bool {
	for _, a := range st.StudentAnswers {
		if a.StudentName == name && a.QuestionID == questionID {
			return true
		}
	}
	return false
}

func nextQuestion(st domain.State, name string) (domain.Question, bool) {
	answered := make(map[string]struct{})
	for _, a := range answeredQuestions(st, name) {
		answered[a.QuestionID] = struct{}{}
	}
	for _, q := range st.Questions {
		if !q.IsActive {
			continue
		}
		if _, done := answered[q.ID]; !done {
			return q, true
		}
	}
	return domain.Question{}, false
}
