package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"iq-quiz-client/internal/domain"
	"iq-quiz-client/internal/timer"
)

// EventKind names what happened to a run.
type EventKind string

const (
	EventLoading    EventKind = "loading"
	EventIntro      EventKind = "intro"
	EventQuestion   EventKind = "question"
	EventTick       EventKind = "tick"
	EventAnswered   EventKind = "answered"
	EventSubmitting EventKind = "submitting"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is delivered to the Observer of a Runner, in order, from a single
// goroutine. Only the fields relevant to Kind are set.
type Event struct {
	Kind  EventKind
	RunID string
	Phase Phase

	// Index is the 0-based question index for question, tick and answered events.
	Index int
	Total int

	Category           domain.Category
	CategoryPosition   int
	CategoryCount      int
	CategorySize       int
	PositionInCategory int

	Question  *domain.Question
	Seconds   int
	Remaining int
	Answer    int

	Result    *domain.Result
	SharePath string
	Err       error
}

// Observer receives run events. It may call Acknowledge, Select and Close.
type Observer func(Event)

// Runner is the single controller of one Run: it starts a fresh countdown
// whenever a question becomes active, resolves each question exactly once and
// submits exactly once.
type Runner struct {
	id        string
	sessionID string
	ctx       context.Context
	svc       *Service
	logger    *slog.Logger
	seconds   int
	tickOpts  []timer.Option

	mu     sync.Mutex
	run    *Run
	timer  *timer.Countdown
	gen    uint64
	closed bool

	observer Observer
	qmu      sync.Mutex
	pending  []Event
	wake     chan struct{}
	quit     chan struct{}
	stopped  chan struct{}
	quitOnce sync.Once
}

func newRunner(ctx context.Context, svc *Service, id, sessionID string, observer Observer) *Runner {
	if observer == nil {
		observer = func(Event) {}
	}
	r := &Runner{
		id:        id,
		sessionID: sessionID,
		ctx:       ctx,
		svc:       svc,
		logger:    svc.logger.With("run", id),
		seconds:   svc.questionSeconds,
		tickOpts:  []timer.Option{timer.WithInterval(svc.tickInterval)},
		observer:  observer,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go r.dispatch()
	return r
}

// ID identifies the run in logs and transports.
func (r *Runner) ID() string { return r.id }

// Phase reports the current phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return PhaseLoading
	}
	return r.run.Phase()
}

// Index reports the active question index.
func (r *Runner) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return 0
	}
	return r.run.Index()
}

func (r *Runner) attach(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = run
	r.emitIntroLocked()
}

// Acknowledge leaves the category intro and starts the first question of the
// category along with its countdown.
func (r *Runner) Acknowledge() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.run == nil {
		return fmt.Errorf("%w: run closed", domain.ErrWrongPhase)
	}
	if err := r.run.Begin(); err != nil {
		return err
	}
	r.enterQuestionLocked()
	return nil
}

// Select records the user's choice for the question at index. It reports
// false when that question was already resolved or is not active.
func (r *Runner) Select(index, option int) (bool, error) {
	if option < 0 || option >= domain.OptionCount {
		return false, fmt.Errorf("%w: option %d", domain.ErrInvalidAnswer, option)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.run == nil {
		return false, nil
	}
	return r.resolveLocked(index, option)
}

// Close abandons the run. Events queued before Close are still delivered;
// Drained is closed once they have been.
func (r *Runner) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.stopTimerLocked()
		if r.run != nil {
			r.run.Abandon()
		}
	}
	r.mu.Unlock()
	r.quitOnce.Do(func() { close(r.quit) })
}

// Drained is closed after Close once every queued event reached the observer.
func (r *Runner) Drained() <-chan struct{} {
	return r.stopped
}

func (r *Runner) enterQuestionLocked() {
	r.stopTimerLocked()
	gen, index := r.gen, r.run.Index()
	q := r.run.Current()
	pos, size := r.run.PositionInCategory()

	r.emitLocked(Event{
		Kind:               EventQuestion,
		Index:              index,
		Total:              r.run.Total(),
		Category:           q.Category,
		CategorySize:       size,
		PositionInCategory: pos,
		Question:           &q,
		Seconds:            r.seconds,
		Remaining:          r.seconds,
	})

	r.timer = timer.Start(r.seconds,
		func(remaining int) { r.onTick(gen, index, remaining) },
		func() { r.onExpire(gen, index) },
		r.tickOpts...,
	)
}

// stopTimerLocked drops the active countdown and invalidates its callbacks.
func (r *Runner) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}

func (r *Runner) onTick(gen uint64, index, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen || r.run.Phase() != PhaseQuestion {
		return
	}
	r.emitLocked(Event{Kind: EventTick, Index: index, Total: r.run.Total(), Remaining: remaining})
}

func (r *Runner) onExpire(gen uint64, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	if _, err := r.resolveLocked(index, domain.NoAnswer); err != nil {
		r.logger.Error("timeout not recorded", "index", index, "error", err)
	}
}

func (r *Runner) resolveLocked(index, answer int) (bool, error) {
	ok, err := r.run.Record(index, answer)
	if err != nil || !ok {
		return ok, err
	}
	r.stopTimerLocked()
	r.emitLocked(Event{Kind: EventAnswered, Index: index, Total: r.run.Total(), Answer: answer})

	switch r.run.Phase() {
	case PhaseIntro:
		r.emitIntroLocked()
	case PhaseQuestion:
		r.enterQuestionLocked()
	case PhaseSubmitting:
		r.submitLocked()
	}
	return true, nil
}

func (r *Runner) emitIntroLocked() {
	q := r.run.Current()
	pos, count := r.run.CategoryPosition()
	_, size := r.run.PositionInCategory()
	r.emitLocked(Event{
		Kind:             EventIntro,
		Index:            r.run.Index(),
		Total:            r.run.Total(),
		Category:         q.Category,
		CategoryPosition: pos,
		CategoryCount:    count,
		CategorySize:     size,
		Seconds:          r.seconds,
	})
}

// submitLocked runs once: the only way into PhaseSubmitting is the final
// Record, and Record only accepts the active question.
func (r *Runner) submitLocked() {
	sub, err := r.run.Submission()
	if err != nil {
		r.failLocked(err)
		return
	}
	questions := r.run.Questions()
	r.emitLocked(Event{Kind: EventSubmitting, Total: r.run.Total()})
	r.logger.Debug("submitting run", "answers", len(sub.Answers))

	result, err := r.svc.submit(r.ctx, r.sessionID, sub, questions)
	if err != nil {
		r.failLocked(err)
		return
	}
	r.run.Complete()
	r.logger.Info("run completed", "result", result.ID, "correct", result.CorrectCount)
	r.emitLocked(Event{Kind: EventDone, Result: &result, SharePath: SharePath(result)})
}

func (r *Runner) failLocked(err error) {
	r.run.Fail()
	r.logger.Error("run failed", "error", err)
	r.emitLocked(Event{Kind: EventError, Err: err})
}

func (r *Runner) emitLocked(ev Event) {
	ev.RunID = r.id
	if ev.Phase == "" && r.run != nil {
		ev.Phase = r.run.Phase()
	}
	r.emit(ev)
}

func (r *Runner) emit(ev Event) {
	r.qmu.Lock()
	r.pending = append(r.pending, ev)
	r.qmu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued events outside the run lock so observers may call
// Select or Acknowledge without deadlocking.
func (r *Runner) dispatch() {
	defer close(r.stopped)
	for {
		select {
		case <-r.wake:
			r.drain()
		case <-r.quit:
			r.drain()
			return
		}
	}
}

func (r *Runner) drain() {
	for {
		r.qmu.Lock()
		batch := r.pending
		r.pending = nil
		r.qmu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			r.observer(ev)
		}
	}
}

// SharePath is the result view location for a completed run.
func SharePath(result domain.Result) string {
	if result.ShareToken != "" {
		return "/result/" + result.ShareToken
	}
	return fmt.Sprintf("/result/%d", result.ID)
}
