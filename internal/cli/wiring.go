package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"iq-quiz-client/internal/app"
	"iq-quiz-client/internal/config"
	"iq-quiz-client/internal/infra/backend"
	"iq-quiz-client/internal/infra/memory"
	infraredis "iq-quiz-client/internal/infra/redis"
)

const (
	defaultSessionTTL = 30 * time.Minute
	defaultRankingTTL = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func loadConfig() (config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, fmt.Errorf("load env file: %w", err)
	}
	return config.Load(configPath)
}

// stack is the assembled client: backend, stores and the use-case service.
type stack struct {
	service *app.Service
	// sweeper is set when sessions live in process memory.
	sweeper *memory.SessionStore
	redis   *redis.Client
}

func (s *stack) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func buildStack(cfg config.Config, logger *slog.Logger, opts ...app.Option) *stack {
	client := backend.New(cfg.Backend.URL,
		backend.WithTimeout(config.TTLDuration(cfg.Backend.Timeout, backend.DefaultTimeout)),
		backend.WithLogger(logger),
	)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, defaultSessionTTL)
	rankingTTL := config.TTLDuration(cfg.Ranking.TTL, defaultRankingTTL)

	st := &stack{}
	var (
		sessions app.SessionStore
		ranking  app.RankingRepository
	)
	if cfg.Redis.Addr != "" {
		st.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sessions = infraredis.NewSessionStore(st.redis, sessionTTL)
		ranking = infraredis.NewRankingRepository(st.redis, client, rankingTTL)
	} else {
		st.sweeper = memory.NewSessionStore(sessionTTL)
		sessions = st.sweeper
		ranking = memory.NewRankingRepository(client, rankingTTL)
	}

	opts = append([]app.Option{
		app.WithQuestionSeconds(cfg.Quiz.QuestionSeconds),
		app.WithLogger(logger),
	}, opts...)
	st.service = app.NewService(client, sessions, ranking, opts...)
	return st
}

// serveHTTP runs srv until ctx is canceled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "addr", srv.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func pickPort(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if configured != "" {
		return configured
	}
	return "8080"
}
