package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"iq-quiz-client/internal/display"
	"iq-quiz-client/internal/export"
	"iq-quiz-client/internal/logging"
)

// NewRankingCmd prints the ranking board, optionally exporting it to Excel.
func NewRankingCmd() *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the ranking board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st := buildStack(cfg, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
			defer st.Close()

			ranking, err := st.service.Ranking(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), display.UserMessage(err))
				return err
			}
			display.Ranking(cmd.OutOrStdout(), ranking)

			if xlsxPath == "" {
				return nil
			}
			f, err := os.Create(xlsxPath)
			if err != nil {
				return err
			}
			if err := export.RankingXLSX(f, ranking); err != nil {
				f.Close()
				return fmt.Errorf("export ranking: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the board to this .xlsx file")
	return cmd
}

// NewResultCmd shows a shared result by token or id.
func NewResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <share-token>",
		Short: "Show a shared result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st := buildStack(cfg, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
			defer st.Close()

			view, err := st.service.ViewResult(cmd.Context(), "", args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), display.UserMessage(err))
				return err
			}
			display.Result(cmd.OutOrStdout(), view.Result, nil)
			return nil
		},
	}
}

// NewFeedbackCmd posts free-text feedback.
func NewFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <text>",
		Short: "Send feedback about the test",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st := buildStack(cfg, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
			defer st.Close()

			if err := st.service.SendFeedback(cmd.Context(), strings.Join(args, " ")); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), display.UserMessage(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "소중한 의견 감사합니다!")
			return nil
		},
	}
}
