package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"iq-quiz-client/internal/domain"
)

// Backend is the scoring service contract the client consumes.
type Backend interface {
	LoadQuestions(ctx context.Context) (domain.QuestionSet, error)
	CheckEligibility(ctx context.Context) (bool, error)
	Submit(ctx context.Context, sub domain.Submission) (domain.Result, error)
	GetResult(ctx context.Context, idOrToken string) (domain.Result, error)
	SubmitFeedback(ctx context.Context, content string) error
}

// RankingRepository serves the ranking board (cached or straight from the backend).
type RankingRepository interface {
	GetRanking(ctx context.Context) (domain.Ranking, error)
}

// rankingInvalidator is implemented by caching repositories.
type rankingInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SessionStore abstracts the short-lived, per-browsing-session storage
// (in-memory, Redis, etc). The session token of a run is never stored here.
type SessionStore interface {
	SetNickname(ctx context.Context, sessionID, nickname string) error
	// Nickname returns "" when none was entered.
	Nickname(ctx context.Context, sessionID string) (string, error)
	SaveHandoff(ctx context.Context, sessionID string, h domain.Handoff) error
	Handoff(ctx context.Context, sessionID string) (domain.Handoff, bool, error)
	History(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error)
	SaveHistory(ctx context.Context, sessionID string, history []domain.HistoryEntry) error
	// Clear drops nickname and hand-off; IQ history survives restarts.
	Clear(ctx context.Context, sessionID string) error
}

// DefaultQuestionSeconds is the uniform per-question time limit.
const DefaultQuestionSeconds = 10

// Service contains the client use cases around a test run.
type Service struct {
	backend  Backend
	sessions SessionStore
	ranking  RankingRepository

	questionSeconds int
	tickInterval    time.Duration
	logger          *slog.Logger
	newID           func() string
}

// Option configures a Service.
type Option func(*Service)

// WithQuestionSeconds sets the per-question time limit.
func WithQuestionSeconds(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.questionSeconds = n
		}
	}
}

// WithTickInterval sets the length of one countdown step; tests shrink it.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(backend Backend, sessions SessionStore, ranking RankingRepository, opts ...Option) *Service {
	s := &Service{
		backend:         backend,
		sessions:        sessions,
		ranking:         ranking,
		questionSeconds: DefaultQuestionSeconds,
		tickInterval:    time.Second,
		logger:          slog.Default(),
		newID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuestionSeconds reports the configured time limit.
func (s *Service) QuestionSeconds() int {
	return s.questionSeconds
}

// NewSessionID issues an identifier for a browsing session.
func (s *Service) NewSessionID() string {
	return s.newID()
}

// Enter validates and stores the nickname for a session after the optional
// eligibility pre-check. A failing pre-check lets the user through: the
// backend enforces the daily limit at submission anyway.
func (s *Service) Enter(ctx context.Context, sessionID, nickname string) (string, error) {
	name, err := NormalizeNickname(nickname)
	if err != nil {
		return "", err
	}

	canSubmit, err := s.backend.CheckEligibility(ctx)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "eligibility check failed, allowing run", "session", sessionID, "error", err)
	case !canSubmit:
		return "", domain.ErrAlreadySubmitted
	}

	if err := s.sessions.SetNickname(ctx, sessionID, name); err != nil {
		return "", fmt.Errorf("store nickname: %w", err)
	}
	return name, nil
}

// Begin loads a question set for the session's nickname and returns a Runner
// waiting in the first category intro. The observer sees loading, then intro.
// The context bounds the whole run, including its submission.
func (s *Service) Begin(ctx context.Context, sessionID string, observer Observer) (*Runner, error) {
	nickname, err := s.sessions.Nickname(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read nickname: %w", err)
	}
	if nickname == "" {
		return nil, domain.ErrNicknameRequired
	}

	r := newRunner(ctx, s, s.newID(), sessionID, observer)
	r.emit(Event{Kind: EventLoading, RunID: r.id, Phase: PhaseLoading})

	set, err := s.backend.LoadQuestions(ctx)
	if err == nil {
		var run *Run
		if run, err = NewRun(nickname, set); err == nil {
			r.attach(run)
			s.logger.DebugContext(ctx, "run started", "run", r.id, "session", sessionID, "questions", run.Total())
			return r, nil
		}
	}

	err = classify(err, domain.ErrLoadFailed)
	s.logger.ErrorContext(ctx, "question set not loaded", "session", sessionID, "error", err)
	r.emit(Event{Kind: EventError, RunID: r.id, Phase: PhaseError, Err: err})
	r.Close()
	return nil, err
}

// submit sends the completed run and caches the hand-off for the owner view.
func (s *Service) submit(ctx context.Context, sessionID string, sub domain.Submission, questions []domain.Question) (domain.Result, error) {
	if len(sub.Answers) != len(questions) {
		return domain.Result{}, fmt.Errorf("%w: %d answers for %d questions", domain.ErrSubmitFailed, len(sub.Answers), len(questions))
	}
	result, err := s.backend.Submit(ctx, sub)
	if err != nil {
		return domain.Result{}, classify(err, domain.ErrSubmitFailed)
	}
	if err := s.sessions.SaveHandoff(ctx, sessionID, domain.Handoff{Result: result, Questions: questions}); err != nil {
		// The result is persisted by the backend; the view falls back to fetching it.
		s.logger.WarnContext(ctx, "hand-off not cached", "session", sessionID, "error", err)
	}
	if inv, ok := s.ranking.(rankingInvalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "ranking cache not invalidated", "error", err)
		}
	}
	return result, nil
}

// ResultView is what the result screen renders.
type ResultView struct {
	Result domain.Result
	// Owner is true when the viewer produced the result in this session.
	Owner bool
	// Questions backs the answer review; only set for the owner.
	Questions []domain.Question
	// IQDelta compares against the previous distinct result of this session.
	IQDelta *int
}

// ViewResult resolves a result by share token or id. The session's own
// just-completed result is served from the hand-off without a fetch.
func (s *Service) ViewResult(ctx context.Context, sessionID, token string) (ResultView, error) {
	if sessionID != "" {
		h, ok, err := s.sessions.Handoff(ctx, sessionID)
		if err != nil {
			s.logger.WarnContext(ctx, "hand-off unreadable", "session", sessionID, "error", err)
		}
		if ok && matchesToken(h.Result, token) {
			view := ResultView{Result: h.Result, Owner: true, Questions: h.Questions}
			view.IQDelta = s.trackHistory(ctx, sessionID, h.Result)
			return view, nil
		}
	}

	result, err := s.backend.GetResult(ctx, token)
	if err != nil {
		return ResultView{}, classify(err, domain.ErrResultNotFound)
	}
	return ResultView{Result: result}, nil
}

func (s *Service) trackHistory(ctx context.Context, sessionID string, result domain.Result) *int {
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "iq history unreadable", "session", sessionID, "error", err)
		return nil
	}
	history, delta := domain.AppendHistory(history, domain.HistoryEntry{
		ShareToken:  result.ShareToken,
		EstimatedIQ: result.EstimatedIQ,
	})
	if err := s.sessions.SaveHistory(ctx, sessionID, history); err != nil {
		s.logger.WarnContext(ctx, "iq history not saved", "session", sessionID, "error", err)
	}
	return delta
}

func matchesToken(r domain.Result, token string) bool {
	if token == "" {
		return false
	}
	return r.ShareToken == token || strconv.FormatInt(r.ID, 10) == token
}

// Ranking returns the ranking board.
func (s *Service) Ranking(ctx context.Context) (domain.Ranking, error) {
	ranking, err := s.ranking.GetRanking(ctx)
	if err != nil {
		return domain.Ranking{}, classify(err, domain.ErrRankingUnavailable)
	}
	return ranking, nil
}

// SendFeedback posts free text to the backend.
func (s *Service) SendFeedback(ctx context.Context, content string) error {
	text, err := NormalizeFeedback(content)
	if err != nil {
		return err
	}
	if err := s.backend.SubmitFeedback(ctx, text); err != nil {
		return classify(err, domain.ErrFeedbackFailed)
	}
	return nil
}

// Restart forgets the nickname and the last result so the next run starts
// from the nickname step.
func (s *Service) Restart(ctx context.Context, sessionID string) error {
	return s.sessions.Clear(ctx, sessionID)
}

// classify makes sure err carries the sentinel its call site maps to.
func classify(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
