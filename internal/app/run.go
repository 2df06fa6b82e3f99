package app

import (
	"fmt"

	"iq-quiz-client/internal/domain"
)

// Phase is the position of a test run in its lifecycle.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseIntro      Phase = "intro"
	PhaseQuestion   Phase = "question"
	PhaseSubmitting Phase = "submitting"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
	PhaseAbandoned  Phase = "abandoned"
)

// Run is the transient state of a single test attempt. It performs no I/O and
// is not safe for concurrent use; Runner owns it behind a mutex.
type Run struct {
	nickname  string
	token     string
	questions []domain.Question
	index     int
	phase     Phase
	answers   map[int64]int
}

// NewRun starts a run in the intro of the first category.
func NewRun(nickname string, set domain.QuestionSet) (*Run, error) {
	set, err := set.Normalize()
	if err != nil {
		return nil, err
	}
	return &Run{
		nickname:  nickname,
		token:     set.SessionToken,
		questions: set.Questions,
		phase:     PhaseIntro,
		answers:   make(map[int64]int, len(set.Questions)),
	}, nil
}

func (r *Run) Phase() Phase { return r.phase }

func (r *Run) Index() int { return r.index }

func (r *Run) Total() int { return len(r.questions) }

func (r *Run) Nickname() string { return r.nickname }

// Current returns the question at the current index.
func (r *Run) Current() domain.Question {
	return r.questions[r.index]
}

// Questions returns a copy of the ordered question list.
func (r *Run) Questions() []domain.Question {
	out := make([]domain.Question, len(r.questions))
	copy(out, r.questions)
	return out
}

// Begin acknowledges the category intro.
func (r *Run) Begin() error {
	if r.phase != PhaseIntro {
		return fmt.Errorf("%w: begin during %s", domain.ErrWrongPhase, r.phase)
	}
	r.phase = PhaseQuestion
	return nil
}

// Record resolves the question at index with answer and advances. It reports
// false without error when the question is not the active one any more, which
// is how late timer expiries and repeated taps are absorbed.
func (r *Run) Record(index, answer int) (bool, error) {
	if !domain.ValidAnswer(answer) {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidAnswer, answer)
	}
	if r.phase != PhaseQuestion || index != r.index {
		return false, nil
	}
	r.answers[r.questions[index].ID] = answer
	r.advance()
	return true, nil
}

func (r *Run) advance() {
	next := r.index + 1
	if next >= len(r.questions) {
		r.phase = PhaseSubmitting
		return
	}
	r.index = next
	if domain.IsCategoryStart(r.questions, next) {
		r.phase = PhaseIntro
		return
	}
	r.phase = PhaseQuestion
}

// Answer returns the recorded answer for a question id.
func (r *Run) Answer(questionID int64) (int, bool) {
	a, ok := r.answers[questionID]
	return a, ok
}

// Submission builds the payload for the backend: every question in
// presentation order, NoAnswer for anything not recorded.
func (r *Run) Submission() (domain.Submission, error) {
	if r.phase != PhaseSubmitting {
		return domain.Submission{}, fmt.Errorf("%w: submission during %s", domain.ErrWrongPhase, r.phase)
	}
	items := make([]domain.AnswerItem, len(r.questions))
	for i, q := range r.questions {
		answer, ok := r.answers[q.ID]
		if !ok {
			answer = domain.NoAnswer
		}
		items[i] = domain.AnswerItem{QuestionID: q.ID, Answer: answer}
	}
	return domain.Submission{
		Nickname:     r.nickname,
		Answers:      items,
		SessionToken: r.token,
	}, nil
}

// Complete marks a successful submission.
func (r *Run) Complete() {
	if r.phase == PhaseSubmitting {
		r.phase = PhaseDone
	}
	r.discard()
}

// Fail marks a failed submission; token and answers are dropped so the run
// cannot be resubmitted.
func (r *Run) Fail() {
	r.phase = PhaseError
	r.discard()
}

// Abandon tears down a run that was left mid-way.
func (r *Run) Abandon() {
	switch r.phase {
	case PhaseDone, PhaseError:
		return
	}
	r.phase = PhaseAbandoned
	r.discard()
}

func (r *Run) discard() {
	r.token = ""
	r.answers = nil
}

// CategoryPosition returns the 1-based position of the current category and
// the number of categories in the set.
func (r *Run) CategoryPosition() (int, int) {
	cats := domain.Categories(r.questions)
	current := r.questions[r.index].Category
	for i, c := range cats {
		if c == current {
			return i + 1, len(cats)
		}
	}
	return 0, len(cats)
}

// PositionInCategory returns the 1-based position of the current question in
// its category run and the size of that run.
func (r *Run) PositionInCategory() (int, int) {
	start := r.index
	for start > 0 && !domain.IsCategoryStart(r.questions, start) {
		start--
	}
	end := r.index + 1
	for end < len(r.questions) && !domain.IsCategoryStart(r.questions, end) {
		end++
	}
	return r.index - start + 1, end - start
}
