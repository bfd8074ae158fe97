package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/auth"
	"classquiz-service/internal/domain"
)

// APIHandler exposes the teacher's quiz management operations over plain JSON:
// bank intake, question edits (with their rescore cascade), and roster
// assignment. Students never touch these routes.
type APIHandler struct {
	quizzes     *app.QuizService
	assignments *app.AssignmentService
	auth        *auth.Service
}

func NewAPIHandler(quizzes *app.QuizService, assignments *app.AssignmentService, authSvc *auth.Service) *APIHandler {
	return &APIHandler{quizzes: quizzes, assignments: assignments, auth: authSvc}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes", h.createQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("PUT /api/quizzes/{id}/questions/{index}", h.updateQuestion)
	mux.HandleFunc("DELETE /api/quizzes/{id}/questions/{index}", h.deleteQuestion)
	mux.HandleFunc("POST /api/quizzes/{id}/assignments", h.assign)
}

type createQuizRequest struct {
	Title     string              `json:"title"`
	Questions []domain.Question   `json:"questions"`
	Settings  domain.QuizSettings `json:"settings"`
}

type assignRequest struct {
	ClassID string            `json:"classId"`
	DueDate *time.Time        `json:"dueDate,omitempty"`
	Roster  []app.RosterEntry `json:"roster"`
}

type editResponse struct {
	Quiz    domain.Quiz       `json:"quiz"`
	Rescore app.CascadeReport `json:"rescore"`
}

func (h *APIHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	quiz, err := h.quizzes.Create(r.Context(), caller, req.Title, req.Questions, req.Settings)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	quiz, err := h.quizzes.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *APIHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}
	var q domain.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	quiz, report, err := h.quizzes.UpdateQuestion(r.Context(), caller, r.PathValue("id"), index, q)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Quiz: quiz, Rescore: report})
}

func (h *APIHandler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}
	quiz, report, err := h.quizzes.DeleteQuestion(r.Context(), caller, r.PathValue("id"), index)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Quiz: quiz, Rescore: report})
}

func (h *APIHandler) assign(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.assignments.Assign(r.Context(), caller, r.PathValue("id"), req.ClassID, req.DueDate, req.Roster)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
