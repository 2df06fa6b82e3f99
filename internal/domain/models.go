package domain

import (
	"fmt"
	"sort"
)

// NoAnswer is recorded for a question whose timer expired without a selection.
const NoAnswer = -1

// OptionCount is the number of choices every question carries (labels A-D).
const OptionCount = 4

// Category groups questions; the value is the backend's wire string.
type Category string

const (
	CategoryNumeric Category = "수리논리"
	CategoryVerbal  Category = "언어유추"
	CategoryReflex  Category = "인지반사"
	CategorySpatial Category = "공간도형"
	CategoryPattern Category = "패턴논리"
)

// CategoryOrder is the canonical presentation order of the known categories.
var CategoryOrder = []Category{
	CategoryNumeric,
	CategoryVerbal,
	CategoryReflex,
	CategorySpatial,
	CategoryPattern,
}

// Question is the client view of a question. The answer key never travels with it.
type Question struct {
	ID          int64    `json:"id"`
	Content     string   `json:"content"`
	Options     []string `json:"options"`
	Category    Category `json:"category"`
	OrderNum    int      `json:"orderNum"`
	CorrectRate *float64 `json:"correctRate,omitempty"`
}

// QuestionSet is what the backend issues at the start of a run.
type QuestionSet struct {
	SessionToken string     `json:"sessionToken"`
	Questions    []Question `json:"questions"`
}

// Normalize sorts questions by presentation order and checks the invariants the
// test run relies on: a token, a non-empty list, four options per question,
// unique ids and contiguous category runs.
func (s QuestionSet) Normalize() (QuestionSet, error) {
	if s.SessionToken == "" {
		return QuestionSet{}, fmt.Errorf("%w: missing session token", ErrInvalidQuestionSet)
	}
	if len(s.Questions) == 0 {
		return QuestionSet{}, fmt.Errorf("%w: no questions", ErrInvalidQuestionSet)
	}

	questions := make([]Question, len(s.Questions))
	copy(questions, s.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].OrderNum < questions[j].OrderNum
	})

	seenIDs := make(map[int64]struct{}, len(questions))
	closed := make(map[Category]struct{})
	for i, q := range questions {
		if len(q.Options) != OptionCount {
			return QuestionSet{}, fmt.Errorf("%w: question %d has %d options", ErrInvalidQuestionSet, q.ID, len(q.Options))
		}
		if _, dup := seenIDs[q.ID]; dup {
			return QuestionSet{}, fmt.Errorf("%w: duplicate question id %d", ErrInvalidQuestionSet, q.ID)
		}
		seenIDs[q.ID] = struct{}{}

		if IsCategoryStart(questions, i) {
			if _, ok := closed[q.Category]; ok {
				return QuestionSet{}, fmt.Errorf("%w: category %q is not contiguous", ErrInvalidQuestionSet, q.Category)
			}
			if i > 0 {
				closed[questions[i-1].Category] = struct{}{}
			}
		}
	}

	return QuestionSet{SessionToken: s.SessionToken, Questions: questions}, nil
}

// IsCategoryStart reports whether index i opens a new category run.
func IsCategoryStart(questions []Question, i int) bool {
	return i == 0 || questions[i].Category != questions[i-1].Category
}

// Categories lists categories in the order they first appear.
func Categories(questions []Question) []Category {
	var out []Category
	for i := range questions {
		if IsCategoryStart(questions, i) {
			out = append(out, questions[i].Category)
		}
	}
	return out
}

// ValidAnswer reports whether a is an option index or the NoAnswer sentinel.
func ValidAnswer(a int) bool {
	return a == NoAnswer || (a >= 0 && a < OptionCount)
}

// AnswerItem is a single entry of a submission.
type AnswerItem struct {
	QuestionID int64 `json:"questionId"`
	Answer     int   `json:"answer"`
}

// Submission is sent to the backend exactly once per completed run.
type Submission struct {
	Nickname     string       `json:"nickname"`
	Answers      []AnswerItem `json:"answers"`
	SessionToken string       `json:"sessionToken"`
}

// AnswerFeedback is only present on the owner's view of a result.
type AnswerFeedback struct {
	QuestionID    int64    `json:"questionId"`
	UserAnswer    int      `json:"userAnswer"`
	CorrectAnswer int      `json:"correctAnswer"`
	IsCorrect     bool     `json:"isCorrect"`
	Category      Category `json:"category"`
}

// Result is the scored outcome returned by the backend.
type Result struct {
	ID                int64            `json:"id"`
	ShareToken        string           `json:"shareToken"`
	Nickname          string           `json:"nickname"`
	Score             int              `json:"score"`
	CorrectCount      int              `json:"correctCount"`
	TimeSeconds       int              `json:"timeSeconds"`
	Rank              int              `json:"rank"`
	TotalParticipants int              `json:"totalParticipants"`
	TopPercent        float64          `json:"topPercent"`
	EstimatedIQ       int              `json:"estimatedIq"`
	AnswerFeedback    []AnswerFeedback `json:"answerFeedback,omitempty"`
}

// HasFeedback reports whether per-question feedback was included.
func (r Result) HasFeedback() bool {
	return len(r.AnswerFeedback) > 0
}

// RankingEntry is one row of the ranking board.
type RankingEntry struct {
	Rank         int    `json:"rank"`
	Nickname     string `json:"nickname"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
	TimeSeconds  int    `json:"timeSeconds"`
	EstimatedIQ  int    `json:"estimatedIq"`
}

// PercentileMarker pins the entry sitting at a population percentile.
type PercentileMarker struct {
	Percentile int          `json:"percentile"`
	Entry      RankingEntry `json:"entry"`
}

// Ranking is the top-N board plus percentile markers.
type Ranking struct {
	Entries           []RankingEntry     `json:"top"`
	Percentiles       []PercentileMarker `json:"percentiles"`
	TotalParticipants int                `json:"totalParticipants"`
}

// Handoff is the just-completed result cached for the owner's result view.
type Handoff struct {
	Result    Result     `json:"result"`
	Questions []Question `json:"questions"`
}

// HistoryEntry is one remembered estimate used to show the IQ trend.
type HistoryEntry struct {
	ShareToken  string `json:"token"`
	EstimatedIQ int    `json:"iq"`
}

// HistoryLimit bounds how many past estimates are remembered.
const HistoryLimit = 10

// AppendHistory adds an entry unless its token is already known and trims to
// HistoryLimit. It returns the delta against the most recent other entry.
func AppendHistory(history []HistoryEntry, entry HistoryEntry) ([]HistoryEntry, *int) {
	var delta *int
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ShareToken != entry.ShareToken {
			d := entry.EstimatedIQ - history[i].EstimatedIQ
			delta = &d
			break
		}
	}
	for _, h := range history {
		if h.ShareToken == entry.ShareToken {
			return history, delta
		}
	}
	history = append(history, entry)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	return history, delta
}
