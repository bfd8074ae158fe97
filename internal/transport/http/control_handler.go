package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"classquiz-service/internal/app"
	"classquiz-service/internal/auth"
	"classquiz-service/internal/domain"
)

// ControlHandler serves the teacher-side websocket: session transitions in,
// session state plus the class progress roster out.
type ControlHandler struct {
	sessions *app.SessionController
	auth     *auth.Service
	upgrader websocket.Upgrader
}

func NewControlHandler(sessions *app.SessionController, authSvc *auth.Service) *ControlHandler {
	return &ControlHandler{
		sessions: sessions,
		auth:     authSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *ControlHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if caller.Role != domain.RoleTeacher {
		http.Error(w, "teachers only", http.StatusForbidden)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	classID := r.URL.Query().Get("classId")
	if quizID == "" || classID == "" {
		http.Error(w, "missing quizId or classId", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.Get(r.Context(), quizID, classID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if session.TeacherID != caller.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
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

	updates, cancel := h.sessions.Subscribe(quizID, classID)
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
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Initial snapshot so the monitor renders before the first transition.
	send <- outboundMessage[any]{Type: "session", Payload: session}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var (
			updated domain.Session
			opErr   error
		)
		switch inbound.Type {
		case "start":
			updated, opErr = h.sessions.Start(r.Context(), caller, quizID, classID)
		case "pause":
			updated, opErr = h.sessions.Pause(r.Context(), caller, quizID, classID)
		case "resume":
			updated, opErr = h.sessions.Resume(r.Context(), caller, quizID, classID)
		case "end":
			updated, opErr = h.sessions.End(r.Context(), caller, quizID, classID)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			continue
		}
		if opErr != nil {
			send <- errMsg(opErr)
			continue
		}
		send <- outboundMessage[any]{Type: "session", Payload: updated}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
