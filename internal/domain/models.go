package domain

import (
	"fmt"
	"strings"
	"time"
)

// Question models a multiple-choice question authored by the teacher.
type Question struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	IsActive      bool     `json:"isActive"`
}

// IsCorrect compares the chosen option with the correct answer verbatim.
func (q Question) IsCorrect(answer string) bool {
	return q.CorrectAnswer == answer
}

func (q Question) clone() Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// StudentAnswer is a single submission, carrying a snapshot of the student profile.
type StudentAnswer struct {
	ID            string    `json:"id"`
	StudentName   string    `json:"studentName"`
	StudentAge    string    `json:"studentAge"`
	StudentSchool string    `json:"studentSchool"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	Timestamp     time.Time `json:"timestamp"`
}

// Student is the self-reported profile collected at registration.
type Student struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	School string `json:"school"`
}

// Validate rejects a profile with any blank field.
func (s Student) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: name", ErrMissingField)
	case strings.TrimSpace(s.Age) == "":
		return fmt.Errorf("%w: age", ErrMissingField)
	case strings.TrimSpace(s.School) == "":
		return fmt.Errorf("%w: school", ErrMissingField)
	}
	return nil
}

// QuestionDraft is the authoring form before an id is assigned.
type QuestionDraft struct {
	Description   string   `json:"description"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Validate enforces the catalog invariant: at least two distinct, non-blank
// options and a correct answer that is one of them.
func (d QuestionDraft) Validate() error {
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description", ErrMissingField)
	}
	if len(d.Options) < 2 {
		return fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidQuestion, len(d.Options))
	}
	seen := make(map[string]struct{}, len(d.Options))
	for i, opt := range d.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d", ErrMissingField, i+1)
		}
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidQuestion, opt)
		}
		seen[opt] = struct{}{}
	}
	if d.CorrectAnswer == "" {
		return fmt.Errorf("%w: correct answer", ErrMissingField)
	}
	if _, ok := seen[d.CorrectAnswer]; !ok {
		return fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidQuestion, d.CorrectAnswer)
	}
	return nil
}

// Question builds an inactive question with the given id.
func (d QuestionDraft) Question(id string) Question {
	return Question{
		ID:            id,
		Description:   d.Description,
		ImageURL:      d.ImageURL,
		Options:       append([]string(nil), d.Options...),
		CorrectAnswer: d.CorrectAnswer,
		IsActive:      false,
	}
}

// State is the whole persisted record: catalog, answer log and the id counter.
type State struct {
	Questions       []Question      `json:"questions"`
	StudentAnswers  []StudentAnswer `json:"studentAnswers"`
	NextQuestionSeq int             `json:"nextQuestionSeq"`
}

// Clone returns a deep copy so snapshots never share backing arrays.
func (s State) Clone() State {
	out := State{
		Questions:       make([]Question, len(s.Questions)),
		StudentAnswers:  make([]StudentAnswer, len(s.StudentAnswers)),
		NextQuestionSeq: s.NextQuestionSeq,
	}
	for i, q := range s.Questions {
		out.Questions[i] = q.clone()
	}
	copy(out.StudentAnswers, s.StudentAnswers)
	return out
}

// FindQuestion looks a question up by id.
func (s State) FindQuestion(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// StudentStats is the per-student aggregate used by the leaderboard.
type StudentStats struct {
	Name           string `json:"name"`
	School         string `json:"school"`
	Age            string `json:"age"`
	TotalAnswers   int    `json:"totalAnswers"`
	CorrectAnswers int    `json:"correctAnswers"`
	Score          int    `json:"score"`
	Accuracy       int    `json:"accuracy"`
}

// RankedStudent is a leaderboard row.
type RankedStudent struct {
	StudentStats
	Rank      int  `json:"rank"`
	Highlight bool `json:"highlight,omitempty"`
}

// Leaderboard captures the ordered ranking at a point in time.
type Leaderboard struct {
	Entries   []RankedStudent `json:"entries"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StudentSummary feeds the student dashboard.
type StudentSummary struct {
	Student         Student `json:"student"`
	Answered        int     `json:"answered"`
	Correct         int     `json:"correct"`
	Accuracy        int     `json:"accuracy"`
	Rank            int     `json:"rank"`
	Available       int     `json:"available"`
	Remaining       int     `json:"remaining"`
	HasNextQuestion bool    `json:"hasNextQuestion"`
}

// AdminSummary feeds the teacher dashboard.
type AdminSummary struct {
	TotalQuestions  int `json:"totalQuestions"`
	ActiveQuestions int `json:"activeQuestions"`
	TotalStudents   int `json:"totalStudents"`
	TotalAnswers    int `json:"totalAnswers"`
}

// AnswerOutcome summarizes a recorded submission.
type AnswerOutcome struct {
	Answer  StudentAnswer `json:"answer"`
	Correct bool          `json:"correct"`
	Next    *Question     `json:"next,omitempty"`
}

// Percent returns round(100*part/total), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}
