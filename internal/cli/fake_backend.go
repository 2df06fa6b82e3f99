package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"iq-quiz-client/internal/fakebackend"
	"iq-quiz-client/internal/logging"
)

// NewFakeBackendCmd serves an in-memory scoring backend for local development.
func NewFakeBackendCmd(port *string) *cobra.Command {
	var dailyLimit int
	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Serve an in-memory scoring backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("daily-limit") {
				cfg.FakeBackend.DailyLimit = dailyLimit
			}
			return runFakeBackend(cmd.Context(), pickPort(*port, cfg.FakeBackend.Port), cfg.FakeBackend.DailyLimit,
				cfg.Log.Level, cfg.Log.Format)
		},
	}
	cmd.Flags().IntVar(&dailyLimit, "daily-limit", 1, "submissions per origin per day, 0 for unlimited")
	return cmd
}

func runFakeBackend(ctx context.Context, port string, dailyLimit int, level, format string) error {
	logger := logging.New(os.Stderr, level, format)
	store := fakebackend.NewStore(fakebackend.WithDailyLimit(dailyLimit))
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      fakebackend.NewServer(store, logger).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Info("starting fake backend", "port", port, "daily_limit", dailyLimit)
	return serveHTTP(ctx, server, logger)
}
