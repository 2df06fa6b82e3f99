package display

import (
	"fmt"
	"io"
	"strings"

	"iq-quiz-client/internal/domain"
	"iq-quiz-client/internal/timer"
)

// Intro prints the category card shown before its first question.
func Intro(w io.Writer, c domain.Category, position, count, size, seconds int) {
	info := InfoFor(c)
	fmt.Fprintf(w, "\n%s  [%d/%d] %s\n", info.Emoji, position, count, c)
	if info.Description != "" {
		fmt.Fprintf(w, "   %s\n", info.Description)
	}
	fmt.Fprintf(w, "   %d문제 · 문제당 %d초\n", size, seconds)
}

// Question prints a question with its lettered options.
func Question(w io.Writer, q domain.Question, index, total int) {
	fmt.Fprintf(w, "\nQ%d/%d  %s\n", index+1, total, q.Content)
	if q.CorrectRate != nil {
		fmt.Fprintf(w, "   (정답률 %.0f%%)\n", *q.CorrectRate*100)
	}
	for i, opt := range q.Options {
		fmt.Fprintf(w, "   %s. %s\n", OptionLabel(i), opt)
	}
}

// Countdown renders the remaining seconds; the last ones are flagged.
func Countdown(remaining int) string {
	if timer.IsUrgent(remaining) {
		return fmt.Sprintf("⏰ %d", remaining)
	}
	return fmt.Sprintf("⏱ %d", remaining)
}

// Result prints the result card. Owner-only details need feedback on the result.
func Result(w io.Writer, r domain.Result, delta *int) {
	fmt.Fprintf(w, "\n🧠 %s 님의 결과\n", r.Nickname)
	fmt.Fprintf(w, "   IQ %d (%s)", r.EstimatedIQ, IQLabel(r.EstimatedIQ))
	if d := FormatDelta(delta); d != "" {
		fmt.Fprintf(w, "  %s", d)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   정답 %d개 · %s\n", r.CorrectCount, FormatMinSec(r.TimeSeconds))
	if r.TotalParticipants > 0 {
		fmt.Fprintf(w, "   %d위 / %d명 (상위 %.1f%%)\n", r.Rank, r.TotalParticipants, r.TopPercent)
	}
	for _, st := range CategoryStats(r.AnswerFeedback) {
		fmt.Fprintf(w, "   %s %s %d/%d\n", InfoFor(st.Category).Emoji, st.Category, st.Correct, st.Total)
	}
}

// Review prints the per-question answer review for the owner.
func Review(w io.Writer, feedback []domain.AnswerFeedback, questions []domain.Question) {
	if len(feedback) == 0 {
		return
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	fmt.Fprintln(w, "\n📋 문제별 결과")
	for i, f := range feedback {
		mark := "❌"
		if f.IsCorrect {
			mark = "✅"
		}
		content := ""
		if q, ok := byID[f.QuestionID]; ok {
			content = q.Content
		}
		fmt.Fprintf(w, "   %s %2d. %s  내 답 %s · 정답 %s\n", mark, i+1, content, OptionLabel(f.UserAnswer), OptionLabel(f.CorrectAnswer))
	}
}

// Ranking prints the board with percentile markers.
func Ranking(w io.Writer, r domain.Ranking) {
	fmt.Fprintf(w, "\n🏆 순위 (참여자 %d명)\n", r.TotalParticipants)
	if len(r.Entries) == 0 {
		fmt.Fprintln(w, "   아직 기록이 없습니다.")
		return
	}
	for _, e := range r.Entries {
		fmt.Fprintf(w, "   %-3s %-20s IQ %3d  %2d개  %s\n", RankBadge(e.Rank), e.Nickname, e.EstimatedIQ, e.CorrectCount, FormatClock(e.TimeSeconds))
	}
	if len(r.Percentiles) > 0 {
		fmt.Fprintln(w, "   "+strings.Repeat("·", 20))
		for _, m := range r.Percentiles {
			fmt.Fprintf(w, "   상위 %d%%: %d위 IQ %d\n", m.Percentile, m.Entry.Rank, m.Entry.EstimatedIQ)
		}
	}
}
