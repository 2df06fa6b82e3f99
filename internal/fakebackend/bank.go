// Package fakebackend is an in-memory implementation of the scoring backend
// API, used for local play and end-to-end tests.
package fakebackend

import "iq-quiz-client/internal/domain"

// Item is a bank question together with its answer key.
type Item struct {
	Question domain.Question
	Correct  int
}

// SampleBank returns fifteen questions, three per category, in presentation order.
func SampleBank() []Item {
	items := []struct {
		cat     domain.Category
		content string
		options [4]string
		correct int
	}{
		{domain.CategoryNumeric, "2, 4, 8, 16, 다음에 올 수는?", [4]string{"24", "30", "32", "64"}, 2},
		{domain.CategoryNumeric, "3, 6, 11, 18, 다음에 올 수는?", [4]string{"25", "27", "29", "31"}, 1},
		{domain.CategoryNumeric, "사과 3개가 600원이면 사과 5개는 얼마인가?", [4]string{"800원", "900원", "1000원", "1200원"}, 2},
		{domain.CategoryVerbal, "의사 : 병원 = 교사 : ?", [4]string{"학생", "학교", "교과서", "칠판"}, 1},
		{domain.CategoryVerbal, "뜨겁다 : 차갑다 = 높다 : ?", [4]string{"길다", "크다", "낮다", "넓다"}, 2},
		{domain.CategoryVerbal, "책 : 페이지 = 건물 : ?", [4]string{"층", "창문", "도시", "벽돌"}, 0},
		{domain.CategoryReflex, "나머지와 성격이 다른 하나는?", [4]string{"사과", "배", "당근", "포도"}, 2},
		{domain.CategoryReflex, "시계가 3시 15분일 때 두 바늘 사이의 각도는?", [4]string{"0°", "7.5°", "15°", "30°"}, 1},
		{domain.CategoryReflex, "거울에 비친 시계가 2시 30분이라면 실제 시각은?", [4]string{"9시 30분", "10시 30분", "9시", "8시 30분"}, 0},
		{domain.CategorySpatial, "정육면체의 면은 몇 개인가?", [4]string{"4", "6", "8", "12"}, 1},
		{domain.CategorySpatial, "정육면체의 모서리는 몇 개인가?", [4]string{"6", "8", "10", "12"}, 3},
		{domain.CategorySpatial, "종이를 반으로 두 번 접고 가운데에 구멍 하나를 뚫어 펼치면 구멍은 몇 개인가?", [4]string{"1", "2", "4", "8"}, 2},
		{domain.CategoryPattern, "A, C, F, J, 다음에 올 문자는?", [4]string{"N", "O", "P", "M"}, 1},
		{domain.CategoryPattern, "1, 1, 2, 3, 5, 8, 다음에 올 수는?", [4]string{"11", "12", "13", "15"}, 2},
		{domain.CategoryPattern, "○ △ □ ○ △ □ ○ 다음에 올 도형은?", [4]string{"○", "△", "□", "◇"}, 1},
	}

	bank := make([]Item, len(items))
	for i, it := range items {
		bank[i] = Item{
			Question: domain.Question{
				ID:       int64(101 + i),
				Content:  it.content,
				Options:  it.options[:],
				Category: it.cat,
				OrderNum: i + 1,
			},
			Correct: it.correct,
		}
	}
	return bank
}
