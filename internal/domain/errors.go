package domain

import "errors"

var (
	// ErrNicknameRequired is returned when a run is requested before a nickname was entered.
	ErrNicknameRequired = errors.New("nickname required")
	// ErrInvalidNickname indicates the nickname is empty or too long.
	ErrInvalidNickname = errors.New("invalid nickname")
	// ErrAlreadySubmitted is returned when the eligibility check says today's attempt is used.
	ErrAlreadySubmitted = errors.New("already submitted today")
	// ErrLoadFailed wraps any failure fetching the question set.
	ErrLoadFailed = errors.New("question set load failed")
	// ErrInvalidQuestionSet indicates the backend returned a malformed question set.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrSubmitFailed wraps network errors and backend rejections of a submission.
	ErrSubmitFailed = errors.New("result submission failed")
	// ErrResultNotFound indicates an unknown result id or share token.
	ErrResultNotFound = errors.New("result not found")
	// ErrRankingUnavailable wraps failures fetching the ranking.
	ErrRankingUnavailable = errors.New("ranking unavailable")
	// ErrFeedbackFailed wraps failures sending feedback text.
	ErrFeedbackFailed = errors.New("feedback submission failed")
	// ErrInvalidFeedback indicates empty or oversized feedback text.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrInvalidAnswer indicates an option index outside 0-3 and not the sentinel.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrWrongPhase is returned when an action does not apply to the current phase.
	ErrWrongPhase = errors.New("action not allowed in current phase")
	// ErrEligibilityUnknown wraps failures of the eligibility pre-check.
	ErrEligibilityUnknown = errors.New("eligibility check failed")
)
