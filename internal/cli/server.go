package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"iq-quiz-client/internal/logging"
	transport "iq-quiz-client/internal/transport/http"
)

const sweepInterval = time.Minute

// NewServeCmd builds the CLI subcommand that runs the web front service.
func NewServeCmd(port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve test runs over websocket and the result/ranking API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *port)
		},
	}
}

func runServer(ctx context.Context, portFlag string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	st := buildStack(cfg, logger)
	defer st.Close()
	if st.redis != nil {
		if err := st.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	router := transport.NewRouter(st.service, transport.RouterConfig{
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	// no write timeout: a websocket run lasts minutes
	server := &http.Server{
		Addr:              ":" + pickPort(portFlag, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, server, logger)
	})
	if st.sweeper != nil {
		g.Go(func() error {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := st.sweeper.Sweep(); n > 0 {
						logger.Debug("expired sessions swept", "count", n)
					}
				}
			}
		})
	}

	logger.Info("starting iq test front service",
		"port", pickPort(portFlag, cfg.Server.Port),
		"backend", cfg.Backend.URL,
		"question_seconds", cfg.Quiz.QuestionSeconds,
	)
	return g.Wait()
}
