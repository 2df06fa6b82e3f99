package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"iq-quiz-client/internal/app"
	"iq-quiz-client/internal/display"
	"iq-quiz-client/internal/fakebackend"
	"iq-quiz-client/internal/logging"
	"iq-quiz-client/internal/timer"
)

var errInputClosed = errors.New("input closed before the run finished")

// NewPlayCmd builds the terminal player.
func NewPlayCmd() *cobra.Command {
	var (
		nickname string
		fake     bool
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the test in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.Discard()
			if verbose {
				logger = logging.New(os.Stderr, "debug", cfg.Log.Format)
			}

			ctx := cmd.Context()
			if fake {
				url, shutdown, err := startFakeBackend(logger, cfg.FakeBackend.DailyLimit)
				if err != nil {
					return err
				}
				defer shutdown()
				cfg.Backend.URL = url
			}

			st := buildStack(cfg, logger)
			defer st.Close()

			p := &player{
				service:   st.service,
				publicURL: cfg.Server.PublicURL,
				in:        cmd.InOrStdin(),
				out:       cmd.OutOrStdout(),
			}
			return p.play(ctx, nickname)
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "nickname (prompted when empty)")
	cmd.Flags().BoolVar(&fake, "fake", false, "run against an in-process fake backend")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log to stderr while playing")
	return cmd
}

// player drives one run from line-based input. Lines are only consumed while
// an intro or a question is waiting for the user.
type player struct {
	service   *app.Service
	publicURL string
	in        io.Reader
	out       io.Writer
}

func (p *player) play(ctx context.Context, nickname string) error {
	quit := make(chan struct{})
	defer close(quit)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-quit:
				return
			}
		}
	}()

	sessionID := p.service.NewSessionID()
	if strings.TrimSpace(nickname) == "" {
		fmt.Fprint(p.out, "닉네임: ")
		line, ok := <-lines
		if !ok {
			return errInputClosed
		}
		nickname = line
	}
	name, err := p.service.Enter(ctx, sessionID, nickname)
	if err != nil {
		fmt.Fprintln(p.out, display.UserMessage(err))
		return err
	}
	fmt.Fprintf(p.out, "%s님, 문제당 %d초가 주어집니다.\n", name, p.service.QuestionSeconds())

	events := make(chan app.Event, 64)
	runner, err := p.service.Begin(ctx, sessionID, func(ev app.Event) {
		select {
		case events <- ev:
		case <-quit:
		}
	})
	if err != nil {
		fmt.Fprintln(p.out, display.UserMessage(err))
		return err
	}
	defer runner.Close()

	var (
		waiting app.EventKind
		current = -1
		options int
	)
	for {
		var input <-chan string
		if waiting != "" {
			input = lines
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-input:
			if !ok {
				return errInputClosed
			}
			switch waiting {
			case app.EventIntro:
				waiting = ""
				if err := runner.Acknowledge(); err != nil {
					return err
				}
			case app.EventQuestion:
				opt, ok := parseOption(line, options)
				if !ok {
					fmt.Fprintf(p.out, "\n%s 중에서 골라주세요: ", optionRange(options))
					continue
				}
				waiting = ""
				// a rejected select means the countdown won the race
				_, _ = runner.Select(current, opt)
			}

		case ev := <-events:
			switch ev.Kind {
			case app.EventLoading:
				fmt.Fprintln(p.out, "문제를 불러오는 중...")
			case app.EventIntro:
				display.Intro(p.out, ev.Category, ev.CategoryPosition, ev.CategoryCount, ev.CategorySize, ev.Seconds)
				fmt.Fprint(p.out, "   Enter를 눌러 시작하세요 ")
				waiting = app.EventIntro
			case app.EventQuestion:
				display.Question(p.out, *ev.Question, ev.Index, ev.Total)
				fmt.Fprint(p.out, "답: ")
				current, options = ev.Index, len(ev.Question.Options)
				waiting = app.EventQuestion
			case app.EventTick:
				if ev.Index == current && timer.IsUrgent(ev.Remaining) {
					fmt.Fprintf(p.out, "\r%s  답: ", display.Countdown(ev.Remaining))
				}
			case app.EventAnswered:
				if waiting == app.EventQuestion && ev.Index == current {
					waiting = ""
				}
				if ev.Answer < 0 {
					fmt.Fprintln(p.out, "\n시간 초과!")
				}
			case app.EventSubmitting:
				fmt.Fprintln(p.out, "\n결과를 계산하는 중...")
			case app.EventDone:
				return p.showResult(ctx, sessionID, ev)
			case app.EventError:
				fmt.Fprintln(p.out, "\n"+display.UserMessage(ev.Err))
				return ev.Err
			}
		}
	}
}

func (p *player) showResult(ctx context.Context, sessionID string, ev app.Event) error {
	token := strings.TrimPrefix(ev.SharePath, "/result/")
	view, err := p.service.ViewResult(ctx, sessionID, token)
	if err != nil {
		// the run itself succeeded; show what the submission returned
		view = app.ResultView{Result: *ev.Result}
	}
	display.Result(p.out, view.Result, view.IQDelta)
	if len(view.Questions) > 0 {
		display.Review(p.out, view.Result.AnswerFeedback, view.Questions)
	}
	fmt.Fprintf(p.out, "\n공유 링크: %s\n", display.ShareURL(p.publicURL, ev.SharePath))
	return nil
}

// parseOption accepts a letter (A, B, ...) or a 1-based number.
func parseOption(line string, n int) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(line))
	if s == "" {
		return 0, false
	}
	idx := -1
	if len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z' {
		idx = int(s[0] - 'A')
	} else if v, err := strconv.Atoi(s); err == nil {
		idx = v - 1
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func optionRange(n int) string {
	if n <= 0 {
		return "-"
	}
	return display.OptionLabel(0) + "-" + display.OptionLabel(n-1)
}

// startFakeBackend serves the fake backend on a loopback port and returns its
// base URL.
func startFakeBackend(logger *slog.Logger, dailyLimit int) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen fake backend: %w", err)
	}
	store := fakebackend.NewStore(fakebackend.WithDailyLimit(dailyLimit))
	srv := &http.Server{Handler: fakebackend.NewServer(store, logger).Routes()}
	go func() { _ = srv.Serve(ln) }()
	return "http://" + ln.Addr().String(), func() { _ = srv.Close() }, nil
}
