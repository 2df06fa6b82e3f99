package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	envFile    string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "iqtest",
		Short:        "Timed IQ test client: web front service and terminal player",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on (overrides config)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(NewServeCmd(&port))
	cmd.AddCommand(NewPlayCmd())
	cmd.AddCommand(NewRankingCmd())
	cmd.AddCommand(NewResultCmd())
	cmd.AddCommand(NewFeedbackCmd())
	cmd.AddCommand(NewFakeBackendCmd(&port))
	return cmd
}
