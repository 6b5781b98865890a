package handler

import (
	"errors"
	"fmt"

	"github.com/glizzus/voicelink/internal/voice"
)

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

const genericErrorMessage = "Something went wrong, please try again later."

// UserMessage picks what to tell the user about err.
func UserMessage(err error) string {
	var (
		userErr       *UserError
		timeoutErr    *voice.TimeoutError
		capabilityErr *voice.CapabilityError
		discoveryErr  *voice.DiscoveryError
	)
	switch {
	case errors.As(err, &userErr):
		return userErr.Message
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("Discord did not answer within %s. Try again in a moment.", timeoutErr.Timeout)
	case errors.As(err, &capabilityErr):
		return "The bot is not allowed to see voice states, so it cannot join voice channels."
	case errors.As(err, &discoveryErr):
		return "Could not reach the voice server. Try again in a moment."
	default:
		return genericErrorMessage
	}
}
