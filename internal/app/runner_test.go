package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iq-quiz-client/internal/app"
	"iq-quiz-client/internal/domain"
	"iq-quiz-client/internal/infra/memory"
)

func TestRunnerAllCorrect(t *testing.T) {
	backend := newStubBackend("tok-all")
	svc, _ := newService(backend, app.WithTickInterval(time.Hour))
	enter(t, svc, "s1", "alice")

	events, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	seen := drive(t, r, events, func(ev app.Event) {
		if _, err := r.Select(ev.Index, correctOption(ev.Question.ID)); err != nil {
			t.Errorf("select: %v", err)
		}
	})

	last := seen[len(seen)-1]
	if last.Kind != app.EventDone {
		t.Fatalf("expected done, got %s (%v)", last.Kind, last.Err)
	}
	if last.Result.CorrectCount != 15 {
		t.Fatalf("expected 15 correct, got %d", last.Result.CorrectCount)
	}
	if last.SharePath != "/result/share-1" {
		t.Fatalf("unexpected share path %q", last.SharePath)
	}

	subs := backend.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	for _, item := range subs[0].Answers {
		if item.Answer == domain.NoAnswer {
			t.Fatalf("unexpected unanswered item %+v", item)
		}
	}
	if subs[0].SessionToken != "tok-all" || subs[0].Nickname != "alice" {
		t.Fatalf("unexpected submission header %+v", subs[0])
	}

	if seen[0].Kind != app.EventLoading {
		t.Fatalf("expected loading first, got %s", seen[0].Kind)
	}
	var intros []int
	for _, ev := range seen {
		if ev.Kind == app.EventIntro {
			intros = append(intros, ev.Index)
		}
	}
	if fmt.Sprint(intros) != "[0 3 6 9 12]" {
		t.Fatalf("unexpected intro indexes %v", intros)
	}
	if r.Phase() != app.PhaseDone {
		t.Fatalf("expected done phase, got %s", r.Phase())
	}
}

func TestRunnerAllTimeouts(t *testing.T) {
	backend := newStubBackend("tok-slow")
	svc, _ := newService(backend, app.WithQuestionSeconds(1), app.WithTickInterval(2*time.Millisecond))
	enter(t, svc, "s1", "bob")

	events, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	seen := drive(t, r, events, func(app.Event) {})

	last := seen[len(seen)-1]
	if last.Kind != app.EventDone {
		t.Fatalf("expected done, got %s (%v)", last.Kind, last.Err)
	}
	if last.Result.CorrectCount != 0 {
		t.Fatalf("expected 0 correct, got %d", last.Result.CorrectCount)
	}
	subs := backend.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	for _, item := range subs[0].Answers {
		if item.Answer != domain.NoAnswer {
			t.Fatalf("expected every answer -1, got %+v", item)
		}
	}
}

func TestRunnerConcurrentFinalSelectSubmitsOnce(t *testing.T) {
	backend := newStubBackend("tok-race")
	svc, _ := newService(backend, app.WithTickInterval(time.Hour))
	enter(t, svc, "s1", "carol")

	events, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var accepted int32
	drive(t, r, events, func(ev app.Event) {
		if ev.Index < ev.Total-1 {
			_, _ = r.Select(ev.Index, 0)
			return
		}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(option int) {
				defer wg.Done()
				if ok, _ := r.Select(ev.Index, option%4); ok {
					atomic.AddInt32(&accepted, 1)
				}
			}(i)
		}
		wg.Wait()
	})

	if atomic.LoadInt32(&accepted) != 1 {
		t.Fatalf("expected exactly one accepted selection, got %d", accepted)
	}
	if n := len(backend.submissions()); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
}

func TestRunnerSelectRacingTimerResolvesOnce(t *testing.T) {
	backend := newStubBackend("tok-timer")
	svc, _ := newService(backend, app.WithQuestionSeconds(1), app.WithTickInterval(time.Millisecond))
	enter(t, svc, "s1", "dave")

	events, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	seen := drive(t, r, events, func(ev app.Event) {
		go func() {
			time.Sleep(time.Duration(ev.Index%3) * time.Millisecond)
			_, _ = r.Select(ev.Index, 1)
		}()
	})

	answered := make(map[int]int)
	for _, ev := range seen {
		switch ev.Kind {
		case app.EventAnswered:
			answered[ev.Index]++
		case app.EventTick:
			if answered[ev.Index] > 0 {
				t.Fatalf("tick for question %d after it was answered", ev.Index)
			}
		}
	}
	for i := 0; i < 15; i++ {
		if answered[i] != 1 {
			t.Fatalf("question %d resolved %d times", i, answered[i])
		}
	}
	if n := len(backend.submissions()); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
	if len(backend.submissions()[0].Answers) != 15 {
		t.Fatalf("expected 15 answers")
	}
}

func TestRunnerSubmitFailureIsTerminal(t *testing.T) {
	backend := newStubBackend("tok-fail")
	backend.submitErr = errors.New("backend down")
	svc, _ := newService(backend, app.WithTickInterval(time.Hour))
	enter(t, svc, "s1", "erin")

	events, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	seen := drive(t, r, events, func(ev app.Event) { _, _ = r.Select(ev.Index, 2) })

	last := seen[len(seen)-1]
	if last.Kind != app.EventError || !errors.Is(last.Err, domain.ErrSubmitFailed) {
		t.Fatalf("expected submit failure, got %s (%v)", last.Kind, last.Err)
	}
	if r.Phase() != app.PhaseError {
		t.Fatalf("expected error phase, got %s", r.Phase())
	}
	if ok, _ := r.Select(14, 1); ok {
		t.Fatalf("failed run must not accept selections")
	}
	if n := len(backend.submissions()); n != 1 {
		t.Fatalf("expected no automatic retry, got %d attempts", n)
	}
}

func TestRunnerCloseAbandons(t *testing.T) {
	backend := newStubBackend("tok-close")
	svc, _ := newService(backend, app.WithTickInterval(time.Hour))
	enter(t, svc, "s1", "frank")

	_, observer := collect()
	r, err := svc.Begin(context.Background(), "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.Acknowledge(); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	r.Close()

	select {
	case <-r.Drained():
	case <-time.After(time.Second):
		t.Fatalf("dispatcher did not stop")
	}
	if r.Phase() != app.PhaseAbandoned {
		t.Fatalf("expected abandoned, got %s", r.Phase())
	}
	if ok, _ := r.Select(0, 1); ok {
		t.Fatalf("closed run must not accept selections")
	}
	if err := r.Acknowledge(); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase, got %v", err)
	}
	if n := len(backend.submissions()); n != 0 {
		t.Fatalf("abandoned run submitted %d times", n)
	}
}

func TestRunnerRejectsOutOfRangeOption(t *testing.T) {
	svc, _ := newService(newStubBackend("tok"), app.WithTickInterval(time.Hour))
	enter(t, svc, "s1", "gina")
	r, err := svc.Begin(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer r.Close()
	_ = r.Acknowledge()
	if _, err := r.Select(0, domain.NoAnswer); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("users cannot select -1, got %v", err)
	}
	if _, err := r.Select(0, 4); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
}

func TestBeginRequiresNickname(t *testing.T) {
	svc, _ := newService(newStubBackend("tok"))
	if _, err := svc.Begin(context.Background(), "nobody", nil); !errors.Is(err, domain.ErrNicknameRequired) {
		t.Fatalf("expected nickname required, got %v", err)
	}
}

func TestBeginLoadFailure(t *testing.T) {
	backend := newStubBackend("tok")
	backend.loadErr = errors.New("connection refused")
	svc, _ := newService(backend)
	enter(t, svc, "s1", "hank")

	events, observer := collect()
	if _, err := svc.Begin(context.Background(), "s1", observer); !errors.Is(err, domain.ErrLoadFailed) {
		t.Fatalf("expected load failure, got %v", err)
	}
	first, second := next(t, events), next(t, events)
	if first.Kind != app.EventLoading || second.Kind != app.EventError {
		t.Fatalf("expected loading then error, got %s, %s", first.Kind, second.Kind)
	}
}

func TestBeginRejectsMalformedSet(t *testing.T) {
	backend := newStubBackend("tok")
	backend.set.Questions[0].Options = []string{"only", "three", "options"}
	svc, _ := newService(backend)
	enter(t, svc, "s1", "ivy")

	_, err := svc.Begin(context.Background(), "s1", nil)
	if !errors.Is(err, domain.ErrLoadFailed) || !errors.Is(err, domain.ErrInvalidQuestionSet) {
		t.Fatalf("expected load failure for invalid set, got %v", err)
	}
}

func TestEnterEligibility(t *testing.T) {
	t.Run("fails open", func(t *testing.T) {
		backend := newStubBackend("tok")
		backend.eligibleErr = errors.New("timeout")
		svc, store := newService(backend)
		name, err := svc.Enter(context.Background(), "s1", "  민수  ")
		if err != nil {
			t.Fatalf("enter: %v", err)
		}
		if name != "민수" {
			t.Fatalf("expected trimmed nickname, got %q", name)
		}
		if got, _ := store.Nickname(context.Background(), "s1"); got != "민수" {
			t.Fatalf("nickname not stored: %q", got)
		}
	})

	t.Run("already submitted", func(t *testing.T) {
		backend := newStubBackend("tok")
		backend.eligible = false
		svc, store := newService(backend)
		if _, err := svc.Enter(context.Background(), "s1", "jack"); !errors.Is(err, domain.ErrAlreadySubmitted) {
			t.Fatalf("expected already submitted, got %v", err)
		}
		if got, _ := store.Nickname(context.Background(), "s1"); got != "" {
			t.Fatalf("nickname stored for ineligible user")
		}
	})

	t.Run("invalid nickname", func(t *testing.T) {
		svc, _ := newService(newStubBackend("tok"))
		for _, raw := range []string{"", "   ", strings.Repeat("가", 21)} {
			if _, err := svc.Enter(context.Background(), "s1", raw); !errors.Is(err, domain.ErrInvalidNickname) {
				t.Fatalf("expected invalid nickname for %q, got %v", raw, err)
			}
		}
		if _, err := svc.Enter(context.Background(), "s1", strings.Repeat("가", 20)); err != nil {
			t.Fatalf("20 characters must be accepted: %v", err)
		}
	})
}

func TestViewResult(t *testing.T) {
	backend := newStubBackend("tok-view")
	svc, store := newService(backend, app.WithTickInterval(time.Hour))
	ctx := context.Background()
	enter(t, svc, "s1", "kate")

	_ = store.SaveHistory(ctx, "s1", []domain.HistoryEntry{{ShareToken: "older", EstimatedIQ: 90}})

	events, observer := collect()
	r, err := svc.Begin(ctx, "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	drive(t, r, events, func(ev app.Event) { _, _ = r.Select(ev.Index, correctOption(ev.Question.ID)) })

	view, err := svc.ViewResult(ctx, "s1", "share-1")
	if err != nil {
		t.Fatalf("owner view: %v", err)
	}
	if !view.Owner || len(view.Questions) != 15 {
		t.Fatalf("expected owner view with questions, got owner=%v questions=%d", view.Owner, len(view.Questions))
	}
	if view.IQDelta == nil || *view.IQDelta != 40 {
		t.Fatalf("expected delta +40, got %v", view.IQDelta)
	}
	if backend.resultFetches() != 0 {
		t.Fatalf("owner view must not fetch")
	}

	again, _ := svc.ViewResult(ctx, "s1", "share-1")
	if again.IQDelta == nil || *again.IQDelta != 40 {
		t.Fatalf("revisiting must keep the same delta, got %v", again.IQDelta)
	}
	history, _ := store.History(ctx, "s1")
	if len(history) != 2 {
		t.Fatalf("expected two history entries, got %d", len(history))
	}

	shared, err := svc.ViewResult(ctx, "other", "share-1")
	if err != nil {
		t.Fatalf("shared view: %v", err)
	}
	if shared.Owner || shared.Questions != nil || shared.IQDelta != nil {
		t.Fatalf("shared view must not expose owner data: %+v", shared)
	}
	if backend.resultFetches() != 1 {
		t.Fatalf("expected one fetch for shared view, got %d", backend.resultFetches())
	}

	if _, err := svc.ViewResult(ctx, "other", "missing"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRestartKeepsHistory(t *testing.T) {
	svc, store := newService(newStubBackend("tok"))
	ctx := context.Background()
	enter(t, svc, "s1", "liam")
	_ = store.SaveHistory(ctx, "s1", []domain.HistoryEntry{{ShareToken: "a", EstimatedIQ: 110}})

	if err := svc.Restart(ctx, "s1"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := svc.Begin(ctx, "s1", nil); !errors.Is(err, domain.ErrNicknameRequired) {
		t.Fatalf("expected nickname step after restart, got %v", err)
	}
	if history, _ := store.History(ctx, "s1"); len(history) != 1 {
		t.Fatalf("expected history kept, got %v", history)
	}
}

func TestRankingCachedAndInvalidatedBySubmit(t *testing.T) {
	backend := newStubBackend("tok-rank")
	store := memory.NewSessionStore(time.Hour)
	ranking := memory.NewRankingRepository(backend, time.Minute)
	svc := app.NewService(backend, store, ranking, app.WithTickInterval(time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Ranking(ctx); err != nil {
			t.Fatalf("ranking: %v", err)
		}
	}
	if backend.rankingFetches() != 1 {
		t.Fatalf("expected cached ranking, got %d fetches", backend.rankingFetches())
	}

	enter(t, svc, "s1", "mia")
	events, observer := collect()
	r, err := svc.Begin(ctx, "s1", observer)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	drive(t, r, events, func(ev app.Event) { _, _ = r.Select(ev.Index, 0) })

	if _, err := svc.Ranking(ctx); err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if backend.rankingFetches() != 2 {
		t.Fatalf("expected refetch after submission, got %d fetches", backend.rankingFetches())
	}
}

func TestRankingUnavailable(t *testing.T) {
	backend := newStubBackend("tok")
	backend.rankingErr = errors.New("502")
	svc, _ := newService(backend)
	if _, err := svc.Ranking(context.Background()); !errors.Is(err, domain.ErrRankingUnavailable) {
		t.Fatalf("expected ranking unavailable, got %v", err)
	}
}

func TestSendFeedback(t *testing.T) {
	backend := newStubBackend("tok")
	svc, _ := newService(backend)
	ctx := context.Background()

	for _, raw := range []string{"", " \n ", strings.Repeat("x", 501)} {
		if err := svc.SendFeedback(ctx, raw); !errors.Is(err, domain.ErrInvalidFeedback) {
			t.Fatalf("expected invalid feedback, got %v", err)
		}
	}
	if err := svc.SendFeedback(ctx, "  too hard  "); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got := backend.feedback(); len(got) != 1 || got[0] != "too hard" {
		t.Fatalf("unexpected feedback %v", got)
	}

	backend.feedbackErr = errors.New("boom")
	if err := svc.SendFeedback(ctx, "again"); !errors.Is(err, domain.ErrFeedbackFailed) {
		t.Fatalf("expected feedback failure, got %v", err)
	}
}

func TestSharePath(t *testing.T) {
	if got := app.SharePath(domain.Result{ID: 7, ShareToken: "abc"}); got != "/result/abc" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := app.SharePath(domain.Result{ID: 7}); got != "/result/7" {
		t.Fatalf("unexpected fallback path %q", got)
	}
}

func newService(backend *stubBackend, opts ...app.Option) (*app.Service, *memory.SessionStore) {
	store := memory.NewSessionStore(time.Hour)
	return app.NewService(backend, store, backend, opts...), store
}

func enter(t *testing.T, svc *app.Service, sessionID, nickname string) {
	t.Helper()
	if _, err := svc.Enter(context.Background(), sessionID, nickname); err != nil {
		t.Fatalf("enter: %v", err)
	}
}

func collect() (<-chan app.Event, app.Observer) {
	ch := make(chan app.Event, 4096)
	return ch, func(ev app.Event) { ch <- ev }
}

func next(t *testing.T, events <-chan app.Event) app.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}
	return app.Event{}
}

// drive acknowledges every intro and hands question events to onQuestion
// until the run reaches done or error.
func drive(t *testing.T, r *app.Runner, events <-chan app.Event, onQuestion func(app.Event)) []app.Event {
	t.Helper()
	var seen []app.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			seen = append(seen, ev)
			switch ev.Kind {
			case app.EventIntro:
				if err := r.Acknowledge(); err != nil {
					t.Fatalf("acknowledge at %d: %v", ev.Index, err)
				}
			case app.EventQuestion:
				onQuestion(ev)
			case app.EventDone, app.EventError:
				return seen
			}
		case <-deadline:
			t.Fatalf("run did not finish, last events: %d", len(seen))
		}
	}
}

// correctOption is the stub answer key.
func correctOption(id int64) int {
	return int(id % domain.OptionCount)
}

type stubBackend struct {
	set         domain.QuestionSet
	loadErr     error
	eligible    bool
	eligibleErr error
	submitErr   error
	feedbackErr error
	rankingErr  error

	mu        sync.Mutex
	subs      []domain.Submission
	results   map[string]domain.Result
	fetches   int
	rankCalls int
	feedbacks []string
}

func newStubBackend(token string) *stubBackend {
	set := domain.QuestionSet{SessionToken: token}
	// served out of order; the client sorts by orderNum
	for i := 14; i >= 0; i-- {
		set.Questions = append(set.Questions, domain.Question{
			ID:       int64(i + 1),
			Content:  fmt.Sprintf("question %d", i+1),
			Options:  []string{"1", "2", "3", "4"},
			Category: domain.CategoryOrder[i/3],
			OrderNum: i + 1,
		})
	}
	return &stubBackend{set: set, eligible: true, results: make(map[string]domain.Result)}
}

func (b *stubBackend) LoadQuestions(context.Context) (domain.QuestionSet, error) {
	if b.loadErr != nil {
		return domain.QuestionSet{}, b.loadErr
	}
	set := b.set
	set.Questions = append([]domain.Question(nil), b.set.Questions...)
	return set, nil
}

func (b *stubBackend) CheckEligibility(context.Context) (bool, error) {
	return b.eligible, b.eligibleErr
}

func (b *stubBackend) Submit(_ context.Context, sub domain.Submission) (domain.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	if b.submitErr != nil {
		return domain.Result{}, b.submitErr
	}
	if sub.SessionToken != b.set.SessionToken {
		return domain.Result{}, errors.New("invalid session token")
	}
	correct := 0
	for _, item := range sub.Answers {
		if item.Answer == correctOption(item.QuestionID) {
			correct++
		}
	}
	result := domain.Result{
		ID:           1,
		ShareToken:   "share-1",
		Nickname:     sub.Nickname,
		Score:        correct * 1000,
		CorrectCount: correct,
		EstimatedIQ:  130,
	}
	b.results[result.ShareToken] = result
	return result, nil
}

func (b *stubBackend) GetResult(_ context.Context, token string) (domain.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	result, ok := b.results[token]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return result, nil
}

func (b *stubBackend) SubmitFeedback(_ context.Context, content string) error {
	if b.feedbackErr != nil {
		return b.feedbackErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedbacks = append(b.feedbacks, content)
	return nil
}

func (b *stubBackend) GetRanking(context.Context) (domain.Ranking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rankCalls++
	if b.rankingErr != nil {
		return domain.Ranking{}, b.rankingErr
	}
	return domain.Ranking{TotalParticipants: len(b.subs)}, nil
}

func (b *stubBackend) submissions() []domain.Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Submission(nil), b.subs...)
}

func (b *stubBackend) resultFetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func (b *stubBackend) rankingFetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rankCalls
}

func (b *stubBackend) feedback() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.feedbacks...)
}
