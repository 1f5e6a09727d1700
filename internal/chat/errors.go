package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected action.
type Kind int

const (
	// KindValidation marks a malformed username or message body.
	KindValidation Kind = iota + 1
	// KindConflict marks a username that is already held in the room.
	KindConflict
	// KindStore marks a persistence failure.
	KindStore
	// KindProtocol marks an action that is not valid in the session's state.
	KindProtocol
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the error type reported back to a session. Message is the text
// delivered in the `error` event; Err carries the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so wrapped copies of a sentinel
// still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors. Compare with errors.Is.
var (
	ErrInvalidUsername = &Error{
		Kind:    KindValidation,
		Code:    "invalid_username",
		Message: fmt.Sprintf("username must be 1-%d characters of letters, digits, '_' or '-'", MaxUsernameLength),
	}
	ErrMessageTooLong = &Error{
		Kind:    KindValidation,
		Code:    "message_too_long",
		Message: fmt.Sprintf("message exceeds %d characters", MaxMessageLength),
	}
	ErrUsernameTaken = &Error{
		Kind:    KindConflict,
		Code:    "username_taken",
		Message: "username is already taken",
	}
	ErrStoreUnavailable = &Error{
		Kind:    KindStore,
		Code:    "store_unavailable",
		Message: "message could not be saved, please try again",
	}
	ErrHistoryUnavailable = &Error{
		Kind:    KindStore,
		Code:    "history_unavailable",
		Message: "chat history is unavailable",
	}
	ErrNotJoined = &Error{
		Kind:    KindProtocol,
		Code:    "not_joined",
		Message: "join the chat before sending",
	}
	ErrAlreadyJoined = &Error{
		Kind:    KindProtocol,
		Code:    "already_joined",
		Message: "already joined",
	}
	ErrSessionClosed = &Error{
		Kind:    KindProtocol,
		Code:    "session_closed",
		Message: "session is closed",
	}
	ErrMalformedFrame = &Error{
		Kind:    KindProtocol,
		Code:    "malformed_frame",
		Message: "malformed frame",
	}
	ErrUnknownEvent = &Error{
		Kind:    KindProtocol,
		Code:    "unknown_event",
		Message: "unknown event",
	}
	ErrRateLimited = &Error{
		Kind:    KindProtocol,
		Code:    "rate_limited",
		Message: "rate limit exceeded, slow down",
	}
)

// StoreFailure wraps a failed append as ErrStoreUnavailable.
func StoreFailure(err error) error {
	return wrap(ErrStoreUnavailable, err)
}

// HistoryFailure wraps a failed history read as ErrHistoryUnavailable.
func HistoryFailure(err error) error {
	return wrap(ErrHistoryUnavailable, err)
}

func wrap(sentinel *Error, err error) error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     err,
	}
}

// KindOf returns the kind of err, or 0 when err is not a chat error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
