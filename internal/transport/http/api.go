package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iq-quiz-client/internal/app"
	"iq-quiz-client/internal/display"
	"iq-quiz-client/internal/domain"
	"iq-quiz-client/internal/infra/backend"
)

// API serves the read-side pages (result, ranking) and feedback as JSON.
type API struct {
	service   *app.Service
	publicURL string
	logger    *slog.Logger
}

func NewAPI(service *app.Service, publicURL string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, publicURL: publicURL, logger: logger}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type resultView struct {
	Result        domain.Result          `json:"result"`
	Owner         bool                   `json:"owner"`
	IQLabel       string                 `json:"iqLabel"`
	IQDelta       *int                   `json:"iqDelta,omitempty"`
	Questions     []domain.Question      `json:"questions,omitempty"`
	CategoryStats []display.CategoryStat `json:"categoryStats,omitempty"`
	ShareURL      string                 `json:"shareUrl"`
}

// Result renders /api/results/{token}. The session query parameter identifies
// the owner; anyone else gets the shared view.
func (a *API) Result(w http.ResponseWriter, r *http.Request) {
	ctx := backend.WithForwardedFor(r.Context(), clientIP(r))
	view, err := a.service.ViewResult(ctx, r.URL.Query().Get("session"), chi.URLParam(r, "token"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := resultView{
		Result:   view.Result,
		Owner:    view.Owner,
		IQLabel:  display.IQLabel(view.Result.EstimatedIQ),
		IQDelta:  view.IQDelta,
		ShareURL: display.ShareURL(a.publicURL, app.SharePath(view.Result)),
	}
	if view.Owner {
		out.Questions = view.Questions
		out.CategoryStats = display.CategoryStats(view.Result.AnswerFeedback)
	} else {
		out.Result.AnswerFeedback = nil
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (a *API) Ranking(w http.ResponseWriter, r *http.Request) {
	ranking, err := a.service.Ranking(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: ranking})
}

func (a *API) Feedback(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.writeError(w, domain.ErrInvalidFeedback)
		return
	}
	if err := a.service.SendFeedback(r.Context(), in.Content); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, envelope{Success: false, Error: display.UserMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidFeedback), errors.Is(err, domain.ErrInvalidNickname):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRankingUnavailable), errors.Is(err, domain.ErrFeedbackFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP is the request origin after RealIP has applied forwarding headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
