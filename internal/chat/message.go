// Package chat defines the values shared by every part of the chat service:
// persisted messages, the wire events exchanged with clients, input
// validation rules, and the error taxonomy reported back to sessions.
package chat

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxUsernameLength = 20
	MaxMessageLength  = 500
)

// DefaultRoom is the only room the service hosts.
const DefaultRoom = "general"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Message is a persisted chat message. ID and Timestamp are assigned by the
// store on append and define the canonical order within a room.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidateUsername checks name exactly as given. Surrounding whitespace is
// not trimmed and fails the charset check.
func ValidateUsername(name string) error {
	if name == "" || utf8.RuneCountInString(name) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

// NormalizeBody trims a message body. It returns ok=false for a body that is
// empty after trimming, which callers treat as a silent no-op.
func NormalizeBody(raw string) (body string, ok bool, err error) {
	body = strings.TrimSpace(raw)
	if body == "" {
		return "", false, nil
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", false, ErrMessageTooLong
	}
	return body, true, nil
}
