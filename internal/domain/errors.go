package domain

import "errors"

var (
	// ErrMissingField is returned when a form is submitted without a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidQuestion is returned when a question draft breaks the catalog invariant.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrEmptyAnswer is returned when no option was selected.
	ErrEmptyAnswer = errors.New("no answer selected")
	// ErrNoQuestionAvailable indicates the student has answered every active question.
	ErrNoQuestionAvailable = errors.New("no question available")
	// ErrQuestionNotFound indicates a question id is not in the catalog.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionInactive indicates a question exists but is not offered to students.
	ErrQuestionInactive = errors.New("question is not active")
	// ErrAlreadyAnswered indicates the student already has an answer for the question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrSnapshotNotFound is returned by repositories that hold no state yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrNotPersisted wraps storage failures for a change that was applied in memory.
	ErrNotPersisted = errors.New("persist snapshot")
)
