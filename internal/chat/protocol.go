package chat

import (
	"encoding/json"
	"fmt"
)

// Event names used on the wire in both directions.
const (
	EventJoin        = "join"
	EventMessage     = "message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
	EventChatHistory = "chat-history"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventActiveUsers = "active-users"
	EventError       = "error"
)

// Event is one server-to-client frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Encode renders the event as a JSON text frame.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Name, err)
	}
	return payload, nil
}

// TypingPayload is the body of typing and stop-typing events.
type TypingPayload struct {
	Username string `json:"username"`
}

// MessageEvent carries a newly persisted message.
func MessageEvent(msg Message) Event {
	return Event{Name: EventMessage, Data: msg}
}

// HistoryEvent carries the recent messages delivered on join, oldest first.
func HistoryEvent(history []Message) Event {
	if history == nil {
		history = []Message{}
	}
	return Event{Name: EventChatHistory, Data: history}
}

// UserJoinedEvent announces a new room member.
func UserJoinedEvent(username string) Event {
	return Event{Name: EventUserJoined, Data: username}
}

// UserLeftEvent announces a member leaving.
func UserLeftEvent(username string) Event {
	return Event{Name: EventUserLeft, Data: username}
}

// ActiveUsersEvent carries the current presence snapshot.
func ActiveUsersEvent(usernames []string) Event {
	if usernames == nil {
		usernames = []string{}
	}
	return Event{Name: EventActiveUsers, Data: usernames}
}

// TypingEvent reports that username started (or is still) typing.
func TypingEvent(username string) Event {
	return Event{Name: EventTyping, Data: TypingPayload{Username: username}}
}

// StopTypingEvent reports that username stopped typing.
func StopTypingEvent(username string) Event {
	return Event{Name: EventStopTyping, Data: TypingPayload{Username: username}}
}

// ErrorEvent reports a rejected action to the acting session.
func ErrorEvent(err error) Event {
	return Event{Name: EventError, Data: err.Error()}
}

// Request is one decoded client-to-server frame. Exactly one of the concrete
// request types below.
type Request interface {
	event() string
}

// JoinRequest asks to bind a username to the session.
type JoinRequest struct {
	Username string
}

// SendRequest asks to post a message.
type SendRequest struct {
	Body string
}

// TypingRequest signals that the user is typing.
type TypingRequest struct{}

// StopTypingRequest signals that the user stopped typing.
type StopTypingRequest struct{}

func (JoinRequest) event() string       { return EventJoin }
func (SendRequest) event() string       { return EventMessage }
func (TypingRequest) event() string     { return EventTyping }
func (StopTypingRequest) event() string { return EventStopTyping }


type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type inboundMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// DecodeRequest maps a raw client frame to a typed request. The username
// fields clients include in message and typing payloads are ignored; the
// identity bound at join time is authoritative.
func DecodeRequest(raw []byte) (Request, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, ErrMalformedFrame
	}

	switch frame.Event {
	case EventJoin:
		var username string
		if err := json.Unmarshal(frame.Data, &username); err != nil {
			return nil, ErrMalformedFrame
		}
		return JoinRequest{Username: username}, nil
	case EventMessage:
		var msg inboundMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return nil, ErrMalformedFrame
		}
		return SendRequest{Body: msg.Message}, nil
	case EventTyping:
		return TypingRequest{}, nil
	case EventStopTyping:
		return StopTypingRequest{}, nil
	case "":
		return nil, ErrMalformedFrame
	default:
		return nil, ErrUnknownEvent
	}
}
