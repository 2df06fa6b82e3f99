package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iq-quiz-client/internal/domain"
)

func TestLoadQuestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/questions", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"sessionToken": "tok-1",
				"questions": []map[string]interface{}{
					{"id": 7, "content": "2, 4, 8, ?", "options": []string{"10", "12", "16", "18"}, "category": "수리논리", "orderNum": 1, "correctRate": 0.61},
				},
			},
		})
	}))
	defer srv.Close()

	set, err := New(srv.URL).LoadQuestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", set.SessionToken)
	require.Len(t, set.Questions, 1)
	assert.Equal(t, int64(7), set.Questions[0].ID)
	assert.Equal(t, domain.CategoryNumeric, set.Questions[0].Category)
	require.NotNil(t, set.Questions[0].CorrectRate)
	assert.InDelta(t, 0.61, *set.Questions[0].CorrectRate, 1e-9)
}

func TestLoadQuestionsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "no questions"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).LoadQuestions(context.Background())
	require.ErrorIs(t, err, domain.ErrLoadFailed)
	assert.Contains(t, err.Error(), "no questions")
}

func TestCheckEligibility(t *testing.T) {
	var forwarded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Get("X-Forwarded-For")
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]bool{"canSubmit": false}})
	}))
	defer srv.Close()

	ctx := WithForwardedFor(context.Background(), "203.0.113.9")
	ok, err := New(srv.URL).CheckEligibility(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "203.0.113.9", forwarded)
}

func TestCheckEligibilityMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{}})
	}))
	defer srv.Close()

	_, err := New(srv.URL).CheckEligibility(context.Background())
	require.ErrorIs(t, err, domain.ErrEligibilityUnknown)
}

func TestSubmit(t *testing.T) {
	var got domain.Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    domain.Result{ID: 3, ShareToken: "s-3", Nickname: got.Nickname, CorrectCount: 1, EstimatedIQ: 92},
		})
	}))
	defer srv.Close()

	sub := domain.Submission{
		Nickname:     "alice",
		SessionToken: "tok-1",
		Answers:      []domain.AnswerItem{{QuestionID: 1, Answer: 2}, {QuestionID: 2, Answer: domain.NoAnswer}},
	}
	result, err := New(srv.URL).Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "s-3", result.ShareToken)
	assert.Equal(t, sub, got)
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid session token"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), domain.Submission{})
	require.ErrorIs(t, err, domain.ErrSubmitFailed)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid session token", apiErr.Message)
}

func TestGetResultNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/results/nope", r.URL.Path)
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetResult(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrResultNotFound)

	_, err = New(srv.URL).GetResult(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrResultNotFound)
}

func TestGetRankingShapes(t *testing.T) {
	t.Run("board", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": domain.Ranking{
					Entries:           []domain.RankingEntry{{Rank: 1, Nickname: "a"}},
					Percentiles:       []domain.PercentileMarker{{Percentile: 50, Entry: domain.RankingEntry{Rank: 5}}},
					TotalParticipants: 10,
				},
			})
		}))
		defer srv.Close()

		ranking, err := New(srv.URL).GetRanking(context.Background())
		require.NoError(t, err)
		assert.Len(t, ranking.Entries, 1)
		assert.Len(t, ranking.Percentiles, 1)
		assert.Equal(t, 10, ranking.TotalParticipants)
	})

	t.Run("bare list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    []domain.RankingEntry{{Rank: 1, Nickname: "a"}, {Rank: 2, Nickname: "b"}},
			})
		}))
		defer srv.Close()

		ranking, err := New(srv.URL).GetRanking(context.Background())
		require.NoError(t, err)
		assert.Len(t, ranking.Entries, 2)
		assert.Empty(t, ranking.Percentiles)
	})
}

func TestRankingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).GetRanking(context.Background())
	require.ErrorIs(t, err, domain.ErrRankingUnavailable)
}

func TestSubmitFeedback(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feedbacks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL+"/").SubmitFeedback(context.Background(), "nice"))
	assert.Equal(t, "nice", body["content"])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
