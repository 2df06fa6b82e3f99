package app

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"iq-quiz-client/internal/domain"
)

const (
	MaxNicknameLength = 20
	MaxFeedbackLength = 500
)

var validate = validator.New()

type nicknameInput struct {
	Nickname string `validate:"required,max=20"`
}

type feedbackInput struct {
	Content string `validate:"required,max=500"`
}

// NormalizeNickname trims the nickname and checks it is 1-20 characters.
func NormalizeNickname(raw string) (string, error) {
	in := nicknameInput{Nickname: strings.TrimSpace(raw)}
	if err := validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidNickname, fieldProblem(err))
	}
	return in.Nickname, nil
}

// NormalizeFeedback trims feedback text and checks it is 1-500 characters.
func NormalizeFeedback(raw string) (string, error) {
	in := feedbackInput{Content: strings.TrimSpace(raw)}
	if err := validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidFeedback, fieldProblem(err))
	}
	return in.Content, nil
}

func fieldProblem(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "empty"
	case "max":
		return "longer than " + fe.Param() + " characters"
	}
	return fe.Tag()
}
