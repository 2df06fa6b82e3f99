package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"iq-quiz-client/internal/app"
)

// RouterConfig carries the front-service settings the handlers need.
type RouterConfig struct {
	PublicURL      string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter mounts the websocket run endpoint and the JSON API.
func NewRouter(service *app.Service, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	ws := NewWSHandler(service, cfg.PublicURL, cfg.Logger)
	api := NewAPI(service, cfg.PublicURL, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)
	r.With(middleware.Timeout(30*time.Second)).Get("/result/{token}", api.Result)

	r.Route("/api", func(ar chi.Router) {
		ar.Use(middleware.Timeout(30 * time.Second))
		ar.Get("/ranking", api.Ranking)
		ar.Get("/results/{token}", api.Result)
		ar.Post("/feedbacks", api.Feedback)
	})
	return r
}
