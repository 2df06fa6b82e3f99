package fakebackend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iq-quiz-client/internal/domain"
)

// Server exposes a Store over the backend's JSON API.
type Server struct {
	store  *Store
	logger *slog.Logger
}

func NewServer(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Routes builds the router. RealIP makes X-Forwarded-For the request origin.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)

	r.Get("/questions", s.questions)
	r.Get("/questions/eligibility", s.eligibility)
	r.Post("/results", s.submit)
	r.Get("/results/ranking", s.ranking)
	r.Get("/results/{id}", s.result)
	r.Post("/feedbacks", s.feedback)
	return r
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) questions(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.store.Issue(origin(r)))
}

func (s *Server) eligibility(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]bool{"canSubmit": s.store.Eligible(origin(r))})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	result, err := s.store.Submit(origin(r), sub)
	if err != nil {
		s.logger.Info("submission rejected", "origin", origin(r), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("result stored", "id", result.ID, "correct", result.CorrectCount, "score", result.Score)
	writeData(w, result)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.Result(chi.URLParam(r, "id"), origin(r))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeData(w, result)
}

func (s *Server) ranking(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.store.Ranking())
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.store.AddFeedback(in.Content); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDailyLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

func origin(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
