package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	workflow  *app.Workflow
	countdown time.Duration
	tick      time.Duration
	upgrader  websocket.Upgrader
}

func NewWSHandler(workflow *app.Workflow, countdown time.Duration) *WSHandler {
	return &WSHandler{
		workflow:  workflow,
		countdown: countdown,
		tick:      time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Answered   int    `json:"answered"`
	TotalScore int    `json:"totalScore"`
}

type countdownPayload struct {
	QuestionID string `json:"questionId"`
	app.Tick
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades a registered student to a websocket that serves questions,
// a per-question countdown and live leaderboard updates.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	student := domain.Student{Name: q.Get("name"), Age: q.Get("age"), School: q.Get("school")}
	if err := student.Validate(); err != nil {
		http.Error(w, "missing name, age, or school", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()
	log := slog.With("student", student.Name)
	log.Info("student connected")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "err", err)
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	var (
		current     *app.Countdown
		currentDone chan struct{}
	)
	stopCountdown := func() {
		if current == nil {
			return
		}
		current.Stop()
		<-currentDone
		current, currentDone = nil, nil
	}
	// presentQuestion replaces the question view; the previous countdown is always cancelled.
	presentQuestion := func() {
		stopCountdown()
		next, ok := h.workflow.NextQuestion(student)
		if !ok {
			push(outboundMessage[any]{Type: "done", Payload: h.workflow.StudentSummary(student)})
			return
		}
		push(outboundMessage[any]{Type: "question", Payload: newQuestionView(next)})

		cd := app.NewCountdown(h.countdown, h.tick)
		ticks := cd.Start(ctx)
		done := make(chan struct{})
		current, currentDone = cd, done
		go func() {
			defer close(done)
			for tick := range ticks {
				select {
				case send <- outboundMessage[any]{Type: "countdown", Payload: countdownPayload{QuestionID: next.ID, Tick: tick}}:
				case <-cd.Stopped():
					return
				case <-writerDone:
					cd.Stop()
					return
				}
			}
		}()
	}

	push(outboundMessage[any]{Type: "joined", Payload: h.workflow.StudentSummary(student)})
	presentQuestion()

	updates, unsubscribe := h.workflow.Store().Subscribe()
	defer unsubscribe()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case state, ok := <-updates:
				if !ok {
					return
				}
				lb := app.BuildLeaderboard(state, student.Name, time.Now())
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			outcome, err := h.workflow.Submit(ctx, student, payload.QuestionID, payload.Answer)
			if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			logPersistError(err)
			summary := h.workflow.StudentSummary(student)
			push(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID: outcome.Answer.QuestionID,
				Correct:    outcome.Correct,
				Answered:   summary.Answered,
				TotalScore: summary.Correct,
			}})
			presentQuestion()
		case "next":
			presentQuestion()
		case "summary":
			push(outboundMessage[any]{Type: "summary", Payload: h.workflow.StudentSummary(student)})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	stopCountdown()
	unsubscribe()
	<-updatesDone
	close(send)
	<-writerDone
	log.Info("student disconnected")
}
