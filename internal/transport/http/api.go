package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

// API serves the authoring, student and leaderboard endpoints as JSON.
type API struct {
	workflow *app.Workflow
}

func NewAPI(workflow *app.Workflow) *API {
	return &API{workflow: workflow}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/questions", a.listQuestions)
	mux.HandleFunc("GET /api/questions/active", a.listActiveQuestions)
	mux.HandleFunc("POST /api/questions", a.createQuestion)
	mux.HandleFunc("POST /api/questions/{id}/toggle", a.toggleQuestion)
	mux.HandleFunc("DELETE /api/questions/{id}", a.removeQuestion)
	mux.HandleFunc("GET /api/leaderboard", a.leaderboard)
	mux.HandleFunc("GET /api/students/next", a.nextQuestion)
	mux.HandleFunc("GET /api/students/summary", a.studentSummary)
	mux.HandleFunc("POST /api/answers", a.submitAnswer)
	mux.HandleFunc("GET /api/admin/summary", a.adminSummary)
}

// questionView is what students see: the correct answer is never included.
type questionView struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Options     []string `json:"options"`
}

func newQuestionView(q domain.Question) questionView {
	return questionView{ID: q.ID, Description: q.Description, ImageURL: q.ImageURL, Options: q.Options}
}

type submitRequest struct {
	Student    domain.Student `json:"student"`
	QuestionID string         `json:"questionId"`
	Answer     string         `json:"answer"`
}

type submitResponse struct {
	AnswerID   string        `json:"answerId"`
	QuestionID string        `json:"questionId"`
	Correct    bool          `json:"correct"`
	Next       *questionView `json:"next,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	a.refresh(r)
	writeJSON(w, http.StatusOK, a.workflow.Store().Snapshot().Questions)
}

func (a *API) listActiveQuestions(w http.ResponseWriter, r *http.Request) {
	a.refresh(r)
	active := a.workflow.AvailableQuestions()
	views := make([]questionView, len(active))
	for i, q := range active {
		views[i] = newQuestionView(q)
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var draft domain.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid question payload"})
		return
	}
	q, err := a.workflow.AuthorQuestion(r.Context(), draft)
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		writeError(w, err)
		return
	}
	logPersistError(err)
	writeJSON(w, http.StatusCreated, q)
}

func (a *API) toggleQuestion(w http.ResponseWriter, r *http.Request) {
	err := a.workflow.Store().ToggleQuestionActive(r.Context(), r.PathValue("id"))
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		writeError(w, err)
		return
	}
	logPersistError(err)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeQuestion(w http.ResponseWriter, r *http.Request) {
	err := a.workflow.Store().RemoveQuestion(r.Context(), r.PathValue("id"))
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		writeError(w, err)
		return
	}
	logPersistError(err)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	a.refresh(r)
	writeJSON(w, http.StatusOK, a.workflow.Leaderboard(r.URL.Query().Get("student")))
}

func (a *API) nextQuestion(w http.ResponseWriter, r *http.Request) {
	student, ok := studentFromQuery(w, r)
	if !ok {
		return
	}
	a.refresh(r)
	q, found := a.workflow.NextQuestion(student)
	if !found {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: domain.ErrNoQuestionAvailable.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newQuestionView(q))
}

func (a *API) studentSummary(w http.ResponseWriter, r *http.Request) {
	student, ok := studentFromQuery(w, r)
	if !ok {
		return
	}
	a.refresh(r)
	writeJSON(w, http.StatusOK, a.workflow.StudentSummary(student))
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid answer payload"})
		return
	}
	outcome, err := a.workflow.Submit(r.Context(), req.Student, req.QuestionID, req.Answer)
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		writeError(w, err)
		return
	}
	logPersistError(err)

	resp := submitResponse{
		AnswerID:   outcome.Answer.ID,
		QuestionID: outcome.Answer.QuestionID,
		Correct:    outcome.Correct,
	}
	if outcome.Next != nil {
		view := newQuestionView(*outcome.Next)
		resp.Next = &view
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) adminSummary(w http.ResponseWriter, r *http.Request) {
	a.refresh(r)
	writeJSON(w, http.StatusOK, a.workflow.AdminSummary())
}

// refresh picks up writes made by other instances sharing the repository.
func (a *API) refresh(r *http.Request) {
	if err := a.workflow.Store().Refresh(r.Context()); err != nil {
		slog.Warn("serving cached snapshot", "err", err)
	}
}

func studentFromQuery(w http.ResponseWriter, r *http.Request) (domain.Student, bool) {
	q := r.URL.Query()
	student := domain.Student{Name: q.Get("name"), Age: q.Get("age"), School: q.Get("school")}
	if err := student.Validate(); err != nil {
		writeError(w, err)
		return domain.Student{}, false
	}
	return student, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrEmptyAnswer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoQuestionAvailable),
		errors.Is(err, domain.ErrQuestionInactive),
		errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

// logPersistError reports a write that reached the in-memory snapshot but not storage.
func logPersistError(err error) {
	if err != nil {
		slog.Warn("change kept in memory only", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}
