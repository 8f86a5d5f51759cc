package chat

import (
	"errors"
	"fmt"
)

// ErrValidation marks request errors: missing or malformed fields,
// self-chat, oversized payload, too many attachments. They are reported to
// the initiating connection and abort with zero side effects.
var ErrValidation = errors.New("invalid request")

// ErrUnauthorized marks identity mismatches: sending as someone else,
// acting on another user's message, or touching a conversation the caller
// does not belong to.
var ErrUnauthorized = errors.New("unauthorized")

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
