package fakebackend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"iq-quiz-client/internal/domain"
)

var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrDailyLimit      = errors.New("daily attempt limit reached")
	ErrInvalidAnswers  = errors.New("answers do not match the issued questions")
	ErrNotFound        = errors.New("result not found")
	ErrInvalidFeedback = errors.New("feedback must be 1-500 characters")
	ErrInvalidNickname = errors.New("nickname must be 1-20 characters")
)

const (
	// TopSize is the number of entries on the ranking board.
	TopSize = 10
	// TokenTTL bounds how long an issued question set can be submitted.
	TokenTTL = 30 * time.Minute
)

// Markers are the percentiles reported next to the top of the board.
var Markers = []int{25, 50, 75}

// Store holds issued sets, results and feedback. Scores are
// correct*1000 minus elapsed seconds so faster runs win ties on correctness.
type Store struct {
	bank       []Item
	byID       map[int64]Item
	dailyLimit int
	clock      func() time.Time
	newToken   func() string

	mu        sync.Mutex
	issued    map[string]issuedSet
	results   []*record
	attempts  map[string]map[string]int // day -> origin -> count
	stats     map[int64]*questionStat
	feedbacks []string
}

type issuedSet struct {
	origin   string
	issuedAt time.Time
}

type record struct {
	result    domain.Result
	origin    string
	createdAt time.Time
}

type questionStat struct {
	attempts int
	correct  int
}

// Option configures a Store.
type Option func(*Store)

// WithDailyLimit sets attempts per origin per day; 0 disables the limit.
func WithDailyLimit(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.dailyLimit = n
		}
	}
}

// WithClock is used by tests for deterministic elapsed times.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithBank(bank []Item) Option {
	return func(s *Store) {
		if len(bank) > 0 {
			s.bank = bank
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		bank:       SampleBank(),
		dailyLimit: 1,
		clock:      time.Now,
		newToken:   uuid.NewString,
		issued:     make(map[string]issuedSet),
		attempts:   make(map[string]map[string]int),
		stats:      make(map[int64]*questionStat),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.byID = make(map[int64]Item, len(s.bank))
	for _, it := range s.bank {
		s.byID[it.Question.ID] = it
	}
	return s
}

// Issue hands out the question set with a fresh single-use token. Answer keys
// stay in the store.
func (s *Store) Issue(origin string) domain.QuestionSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.expireLocked(now)
	token := s.newToken()
	s.issued[token] = issuedSet{origin: origin, issuedAt: now}

	questions := make([]domain.Question, len(s.bank))
	for i, it := range s.bank {
		q := it.Question
		q.Options = append([]string(nil), it.Question.Options...)
		if st, ok := s.stats[q.ID]; ok && st.attempts > 0 {
			rate := math.Round(float64(st.correct)/float64(st.attempts)*1000) / 1000
			q.CorrectRate = &rate
		}
		questions[i] = q
	}
	return domain.QuestionSet{SessionToken: token, Questions: questions}
}

// Eligible reports whether origin may still submit today.
func (s *Store) Eligible(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibleLocked(origin, s.clock())
}

func (s *Store) eligibleLocked(origin string, now time.Time) bool {
	if s.dailyLimit == 0 {
		return true
	}
	return s.attempts[day(now)][origin] < s.dailyLimit
}

// Submit scores a completed run. The token is consumed whether or not the
// answers are accepted.
func (s *Store) Submit(origin string, sub domain.Submission) (domain.Result, error) {
	nickname := strings.TrimSpace(sub.Nickname)
	if n := utf8.RuneCountInString(nickname); n == 0 || n > 20 {
		return domain.Result{}, ErrInvalidNickname
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.expireLocked(now)
	set, ok := s.issued[sub.SessionToken]
	if !ok || sub.SessionToken == "" {
		return domain.Result{}, ErrInvalidToken
	}
	delete(s.issued, sub.SessionToken)

	if !s.eligibleLocked(origin, now) {
		return domain.Result{}, ErrDailyLimit
	}
	feedback, correct, err := s.gradeLocked(sub.Answers)
	if err != nil {
		return domain.Result{}, err
	}

	elapsed := int(now.Sub(set.issuedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	score := correct*1000 - elapsed
	if score < 0 {
		score = 0
	}

	rec := &record{
		result: domain.Result{
			ID:             int64(len(s.results) + 1),
			ShareToken:     shareToken(s.newToken()),
			Nickname:       nickname,
			Score:          score,
			CorrectCount:   correct,
			TimeSeconds:    elapsed,
			EstimatedIQ:    estimateIQ(correct, len(s.bank)),
			AnswerFeedback: feedback,
		},
		origin:    origin,
		createdAt: now,
	}
	s.results = append(s.results, rec)

	d := day(now)
	if s.attempts[d] == nil {
		s.attempts[d] = make(map[string]int)
	}
	s.attempts[d][origin]++

	return s.viewLocked(rec, true), nil
}

// gradeLocked requires exactly one answer per bank question. NoAnswer counts
// as wrong.
func (s *Store) gradeLocked(answers []domain.AnswerItem) ([]domain.AnswerFeedback, int, error) {
	if len(answers) != len(s.bank) {
		return nil, 0, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidAnswers, len(answers), len(s.bank))
	}
	seen := make(map[int64]bool, len(answers))
	feedback := make([]domain.AnswerFeedback, 0, len(answers))
	correct := 0
	for _, a := range answers {
		it, ok := s.byID[a.QuestionID]
		if !ok || seen[a.QuestionID] || !domain.ValidAnswer(a.Answer) {
			return nil, 0, fmt.Errorf("%w: question %d answer %d", ErrInvalidAnswers, a.QuestionID, a.Answer)
		}
		seen[a.QuestionID] = true
		ok = a.Answer == it.Correct
		if ok {
			correct++
		}
		feedback = append(feedback, domain.AnswerFeedback{
			QuestionID:    a.QuestionID,
			UserAnswer:    a.Answer,
			CorrectAnswer: it.Correct,
			IsCorrect:     ok,
			Category:      it.Question.Category,
		})
	}
	for _, f := range feedback {
		st := s.stats[f.QuestionID]
		if st == nil {
			st = &questionStat{}
			s.stats[f.QuestionID] = st
		}
		st.attempts++
		if f.IsCorrect {
			st.correct++
		}
	}
	return feedback, correct, nil
}

// Result looks a result up by share token or numeric id. Per-question feedback
// is only included for the origin that produced it.
func (s *Store) Result(idOrToken, origin string) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.results {
		if rec.result.ShareToken == idOrToken || strconv.FormatInt(rec.result.ID, 10) == idOrToken {
			return s.viewLocked(rec, rec.origin == origin), nil
		}
	}
	return domain.Result{}, ErrNotFound
}

// Ranking returns the top of the board and percentile markers.
func (s *Store) Ranking() domain.Ranking {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedLocked()
	total := len(ordered)
	board := domain.Ranking{
		Entries:           make([]domain.RankingEntry, 0, TopSize),
		TotalParticipants: total,
	}
	for i, rec := range ordered {
		if i >= TopSize {
			break
		}
		board.Entries = append(board.Entries, entry(rec, i+1))
	}
	if total > TopSize {
		for _, p := range Markers {
			idx := int(math.Ceil(float64(p)*float64(total)/100)) - 1
			if idx < 0 {
				idx = 0
			}
			board.Percentiles = append(board.Percentiles, domain.PercentileMarker{
				Percentile: p,
				Entry:      entry(ordered[idx], idx+1),
			})
		}
	}
	return board
}

// AddFeedback stores free text.
func (s *Store) AddFeedback(content string) error {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > 500 {
		return ErrInvalidFeedback
	}
	s.mu.Lock()
	s.feedbacks = append(s.feedbacks, content)
	s.mu.Unlock()
	return nil
}

// Feedbacks returns everything received so far.
func (s *Store) Feedbacks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.feedbacks...)
}

func (s *Store) viewLocked(rec *record, owner bool) domain.Result {
	ordered := s.orderedLocked()
	out := rec.result
	out.TotalParticipants = len(ordered)
	for i, other := range ordered {
		if other == rec {
			out.Rank = i + 1
			break
		}
	}
	out.TopPercent = math.Round(float64(out.Rank)/float64(out.TotalParticipants)*1000) / 10
	if owner {
		out.AnswerFeedback = append([]domain.AnswerFeedback(nil), rec.result.AnswerFeedback...)
	} else {
		out.AnswerFeedback = nil
	}
	return out
}

// orderedLocked sorts by score desc, then faster time, then earlier submission.
func (s *Store) orderedLocked() []*record {
	ordered := append([]*record(nil), s.results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].result, ordered[j].result
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TimeSeconds != b.TimeSeconds {
			return a.TimeSeconds < b.TimeSeconds
		}
		return ordered[i].createdAt.Before(ordered[j].createdAt)
	})
	return ordered
}

func (s *Store) expireLocked(now time.Time) {
	for token, set := range s.issued {
		if now.Sub(set.issuedAt) > TokenTTL {
			delete(s.issued, token)
		}
	}
}

func entry(rec *record, rank int) domain.RankingEntry {
	return domain.RankingEntry{
		Rank:         rank,
		Nickname:     rec.result.Nickname,
		Score:        rec.result.Score,
		CorrectCount: rec.result.CorrectCount,
		TimeSeconds:  rec.result.TimeSeconds,
		EstimatedIQ:  rec.result.EstimatedIQ,
	}
}

// estimateIQ maps the share of correct answers linearly onto 70-145.
func estimateIQ(correct, total int) int {
	if total == 0 {
		return 70
	}
	return 70 + int(math.Round(75*float64(correct)/float64(total)))
}

func shareToken(id string) string {
	return strings.ReplaceAll(id, "-", "")[:12]
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
