// Package display holds the presentation rules shared by the terminal player
// and the front service: labels, time formats, badges and user messages.
package display

import (
	"errors"
	"fmt"
	"strings"

	"iq-quiz-client/internal/domain"
)

var iqLevels = []struct {
	min   int
	label string
}{
	{130, "천재 수준"},
	{125, "매우 우수"},
	{119, "우수"},
	{110, "평균 이상"},
	{100, "평균"},
	{90, "평균 이하"},
	{81, "낮음"},
}

// IQLabel names the band an estimated IQ falls in.
func IQLabel(iq int) string {
	for _, l := range iqLevels {
		if iq >= l.min {
			return l.label
		}
	}
	return "매우 낮음"
}

// FormatMinSec renders seconds for the result card, e.g. "2분 30초".
func FormatMinSec(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d분 %d초", seconds/60, seconds%60)
}

// FormatClock renders seconds for the ranking table, e.g. "2:30".
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// RankBadge shows medals for the podium and the number otherwise.
func RankBadge(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return fmt.Sprint(rank)
}

// OptionLabel maps an option index to A-D; NoAnswer renders as "-".
func OptionLabel(index int) string {
	if index < 0 || index >= domain.OptionCount {
		return "-"
	}
	return string(rune('A' + index))
}

// CategoryInfo is the intro card content for a category.
type CategoryInfo struct {
	Emoji       string
	Description string
}

var categoryInfo = map[domain.Category]CategoryInfo{
	domain.CategoryNumeric: {"🔢", "수열과 수리 추론 능력을 측정합니다"},
	domain.CategoryVerbal:  {"🔤", "언어 관계와 유추 능력을 측정합니다"},
	domain.CategoryReflex:  {"⚡", "직관적 사고와 판단력을 측정합니다"},
	domain.CategorySpatial: {"🔷", "공간 지각과 도형 추론 능력을 측정합니다"},
	domain.CategoryPattern: {"🧩", "패턴 인식과 논리적 사고를 측정합니다"},
}

// InfoFor returns the intro card of c; unknown categories get a generic card.
func InfoFor(c domain.Category) CategoryInfo {
	if info, ok := categoryInfo[c]; ok {
		return info
	}
	return CategoryInfo{Emoji: "📝"}
}

// CategoryStat is the per-category tally of an owner's result.
type CategoryStat struct {
	Category domain.Category
	Correct  int
	Total    int
}

// CategoryStats tallies feedback per category in canonical order; categories
// outside the canonical list follow in order of first appearance.
func CategoryStats(feedback []domain.AnswerFeedback) []CategoryStat {
	if len(feedback) == 0 {
		return nil
	}
	order := append([]domain.Category(nil), domain.CategoryOrder...)
	known := make(map[domain.Category]bool, len(order))
	for _, c := range order {
		known[c] = true
	}
	tally := make(map[domain.Category]*CategoryStat)
	for _, f := range feedback {
		if !known[f.Category] {
			known[f.Category] = true
			order = append(order, f.Category)
		}
		st := tally[f.Category]
		if st == nil {
			st = &CategoryStat{Category: f.Category}
			tally[f.Category] = st
		}
		st.Total++
		if f.IsCorrect {
			st.Correct++
		}
	}
	stats := make([]CategoryStat, 0, len(tally))
	for _, c := range order {
		if st, ok := tally[c]; ok {
			stats = append(stats, *st)
		}
	}
	return stats
}

// ShareURL joins the public base URL with a result path.
func ShareURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// FormatDelta renders an IQ change against the previous run, "" when unknown.
func FormatDelta(delta *int) string {
	switch {
	case delta == nil:
		return ""
	case *delta > 0:
		return fmt.Sprintf("▲ %d", *delta)
	case *delta < 0:
		return fmt.Sprintf("▼ %d", -*delta)
	}
	return "변화 없음"
}

// UserMessage maps a failure to the one message shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNicknameRequired):
		return "닉네임을 입력해주세요."
	case errors.Is(err, domain.ErrInvalidNickname):
		return "닉네임은 1자 이상 20자 이하여야 합니다."
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "오늘은 이미 테스트에 참여했습니다. 내일 다시 도전해주세요."
	case errors.Is(err, domain.ErrLoadFailed):
		return "문제를 불러오지 못했습니다."
	case errors.Is(err, domain.ErrSubmitFailed):
		return "결과 저장에 실패했습니다. 다시 시도해주세요."
	case errors.Is(err, domain.ErrResultNotFound):
		return "결과를 찾을 수 없습니다."
	case errors.Is(err, domain.ErrRankingUnavailable):
		return "순위를 불러오지 못했습니다."
	case errors.Is(err, domain.ErrInvalidFeedback):
		return "피드백은 1자 이상 500자 이하로 입력해주세요."
	case errors.Is(err, domain.ErrFeedbackFailed):
		return "전송에 실패했습니다."
	}
	return "알 수 없는 오류가 발생했습니다."
}
