// Package http wires the quiz core to websocket clients: one channel for
// students taking a quiz, one for the teacher controlling and monitoring a
// live session.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"classquiz-service/internal/app"
	"classquiz-service/internal/auth"
	"classquiz-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

// sessionView is the slice of a session event a student is allowed to see.
type sessionView struct {
	Session domain.Session `json:"session"`
}

// QuizHandler serves the student-side websocket.
type QuizHandler struct {
	assignments *app.AssignmentService
	auth        *auth.Service
	upgrader    websocket.Upgrader
}

func NewQuizHandler(assignments *app.AssignmentService, authSvc *auth.Service) *QuizHandler {
	return &QuizHandler{
		assignments: assignments,
		auth:        authSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and drives one student's attempt. The first
// message from the server replays persisted progress, so a page refresh never
// restarts the quiz.
func (h *QuizHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	assignmentID := r.URL.Query().Get("assignmentId")
	if assignmentID == "" {
		http.Error(w, "missing assignmentId", http.StatusBadRequest)
		return
	}

	assignment, err := h.assignments.Get(r.Context(), caller, assignmentID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Live quizzes follow the teacher's session state in real time.
	if assignment.QuizMode == domain.Synchronous {
		updates, cancel := h.assignments.SubscribeSession(assignment.QuizID, assignment.ClassID)
		defer cancel()
		go func() {
			defer close(updatesDone)
			for {
				select {
				case ev, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: "session", Payload: sessionView{Session: ev.Session}}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	} else {
		close(updatesDone)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			view, err := h.assignments.StartAttempt(r.Context(), caller, assignmentID)
			if err != nil {
				send <- errMsg(err)
				continue
			}
			send <- outboundMessage[any]{Type: "assignment", Payload: view}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg(err)
				continue
			}
			if err := h.assignments.SaveAnswer(r.Context(), caller, assignmentID, payload.QuestionIndex, payload.Answer); err != nil {
				send <- errMsg(err)
			}
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg(err)
				continue
			}
			if err := h.assignments.Navigate(r.Context(), caller, assignmentID, payload.Index); err != nil {
				send <- errMsg(err)
			}
		case "submit":
			result, err := h.assignments.Submit(r.Context(), caller, assignmentID)
			if err != nil {
				send <- errMsg(err)
				continue
			}
			send <- outboundMessage[any]{Type: "submitted", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func errMsg(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAssignmentNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAttemptsExhausted),
		errors.Is(err, domain.ErrPastDeadline),
		errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrSessionNotActive):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
