// Package handler exposes the tutor over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/metrics"
	"github.com/pavelanni/quiztutor/internal/model"
	"github.com/pavelanni/quiztutor/internal/quizfile"
	"github.com/pavelanni/quiztutor/internal/session"
	"github.com/pavelanni/quiztutor/internal/tracing"
)

const maxBodyBytes = 1 << 20

// Quizzes is the quiz catalog as the API needs it.
type Quizzes interface {
	PutQuiz(ctx context.Context, quiz model.Quiz) error
	GetQuiz(ctx context.Context, subject, week string) ([]model.QuizQuestion, error)
	ListQuizzes(ctx context.Context) ([]model.QuizSummary, error)
}

// Check is a named dependency probed by /healthz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	machine *session.Machine
	quizzes Quizzes
	config  model.TutorConfig
	checks  []Check
}

// New creates a new Handler.
func New(m *session.Machine, q Quizzes, cfg model.TutorConfig, checks ...Check) *Handler {
	return &Handler{machine: m, quizzes: q, config: cfg, checks: checks}
}

// Router builds the full middleware stack and mounts the routes under the
// configured base path. An empty corsOrigins disables CORS handling.
func (h *Handler) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(tracing.Middleware)
	r.Use(metrics.Middleware)
	r.Use(i18n.Middleware(h.config.Lang))

	if basePath := NormalizeBasePath(h.config.BasePath); basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}
	return r
}

// NormalizeBasePath returns p with one leading slash and no trailing one.
func NormalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/turns", h.handleTurn)
		r.Post("/sessions/reset", h.handleReset)
		r.Get("/sessions/{studentID}/{subject}/{week}", h.handleProgress)
		r.Get("/quizzes", h.handleListQuizzes)
		r.Get("/quizzes/{subject}/{week}", h.handleGetQuiz)
		r.Put("/quizzes/{subject}/{week}", h.handlePutQuiz)
	})
}

type turnRequest struct {
	StudentID string `json:"student_id"`
	Subject   string `json:"subject"`
	Week      string `json:"week"`
	Text      string `json:"text"`
}

type turnResponse struct {
	TurnID         string         `json:"turn_id"`
	Text           string         `json:"text"`
	Signal         session.Signal `json:"signal"`
	Kind           string         `json:"kind"`
	QuestionIndex  int            `json:"question_index"`
	TotalQuestions int            `json:"total_questions"`
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key := model.SessionKey{StudentID: req.StudentID, Subject: req.Subject, Week: req.Week}
	turnID := uuid.New().String()

	start := time.Now()
	reply, err := h.machine.HandleInput(r.Context(), key, req.Text)
	if err != nil {
		slog.Error("turn failed", "turn_id", turnID, "session", key.String(), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("turn", "turn_id", turnID, "session", key.String(), "kind", reply.Kind.String(),
		"signal", reply.Signal.String(), "index", reply.QuestionIndex,
		"latency_ms", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, turnResponse{
		TurnID:         turnID,
		Text:           reply.Text,
		Signal:         reply.Signal,
		Kind:           reply.Kind.String(),
		QuestionIndex:  reply.QuestionIndex,
		TotalQuestions: reply.TotalQuestions,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var key model.SessionKey
	if !decodeJSON(w, r, &key) {
		return
	}
	if err := h.machine.Reset(r.Context(), key); err != nil {
		slog.Error("reset failed", "session", key.String(), "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	key := model.SessionKey{
		StudentID: chi.URLParam(r, "studentID"),
		Subject:   chi.URLParam(r, "subject"),
		Week:      chi.URLParam(r, "week"),
	}
	state, err := h.machine.Progress(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.ListQuizzes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []model.QuizSummary{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	subject, week := chi.URLParam(r, "subject"), chi.URLParam(r, "week")
	questions, err := h.quizzes.GetQuiz(r.Context(), subject, week)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(questions) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "quiz not found"})
		return
	}
	writeJSON(w, http.StatusOK, model.Quiz{Subject: subject, Week: week, Questions: questions})
}

// handlePutQuiz accepts a quiz file body. Subject and week come from the
// URL and override any given in the body.
func (h *Handler) handlePutQuiz(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if !decodeJSON(w, r, &body) {
		return
	}
	if body == nil {
		body = make(map[string]json.RawMessage)
	}
	subject, week := chi.URLParam(r, "subject"), chi.URLParam(r, "week")
	body["subject"], _ = json.Marshal(subject)
	body["week"], _ = json.Marshal(week)
	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}

	quiz, err := quizfile.Parse(data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.quizzes.PutQuiz(r.Context(), quiz); err != nil {
		slog.Error("finalize quiz failed", "subject", subject, "week", week, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("quiz finalized", "subject", subject, "week", week, "questions", len(quiz.Questions))
	writeJSON(w, http.StatusOK, model.QuizSummary{
		Subject:       quiz.Subject,
		Week:          quiz.Week,
		QuestionCount: len(quiz.Questions),
		FinalizedAt:   time.Now().UTC(),
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			slog.Warn("health check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidKey), errors.Is(err, model.ErrInvalidQuiz):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body too large"})
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}
