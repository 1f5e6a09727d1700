package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/chat"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the protocol state of a session.
type State int

const (
	// StateConnected: transport open, no username bound.
	StateConnected State = iota
	// StateJoined: username bound and member of the room.
	StateJoined
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errInternal = errors.New("internal error")

// Session binds one transport connection to at most one username.
//
// A session's own transitions are serialized by its mutex; Disconnect waits
// for an in-flight Send, so a message persisted before disconnect is still
// broadcast.
type Session struct {
	mu       sync.Mutex
	id       string
	room     string
	username string
	state    State

	sub broadcast.Subscriber
	c   *Coordinator
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// Room returns the room the session belongs to.
func (s *Session) Room() string {
	return s.room
}

// Username returns the bound username, or "" before join.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle decodes one raw client frame, applies the matching transition and
// reports any failure to this session as a single error event.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	req, err := chat.DecodeRequest(raw)
	if err == nil {
		err = s.Dispatch(ctx, req)
	}
	if err != nil {
		s.Reject(err)
	}
}

// Dispatch applies a decoded request.
func (s *Session) Dispatch(ctx context.Context, req chat.Request) error {
	switch r := req.(type) {
	case chat.JoinRequest:
		return s.Join(ctx, r.Username)
	case chat.SendRequest:
		return s.Send(ctx, r.Body)
	case chat.TypingRequest:
		return s.Typing()
	case chat.StopTypingRequest:
		return s.StopTyping()
	default:
		return chat.ErrUnknownEvent
	}
}

// Reject delivers err to this session as an error event. Errors outside the
// chat taxonomy are logged and reported generically.
func (s *Session) Reject(err error) {
	switch chat.KindOf(err) {
	case chat.KindValidation, chat.KindConflict, chat.KindProtocol:
	case chat.KindStore:
		log.Printf("Store error for session %s: %v", s.id, errors.Unwrap(err))
	default:
		log.Printf("Unexpected error for session %s: %v", s.id, err)
		err = errInternal
	}
	s.c.hub.Deliver(s.sub, chat.ErrorEvent(err))
}

// Join validates username, claims it in the room and moves the session to
// Joined. On success the room is told about the new member, everyone gets a
// fresh active-users list, and the joiner alone receives recent history. A
// history read failure is reported to the joiner but does not undo the join.
func (s *Session) Join(ctx context.Context, username string) error {
	c := s.c
	ctx, span := c.tracer.Start(ctx, "session.join", trace.WithAttributes(
		attribute.String("chat.room", s.room),
		attribute.String("chat.session_id", s.id),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateJoined:
		return chat.ErrAlreadyJoined
	case StateClosed:
		return chat.ErrSessionClosed
	}

	if err := chat.ValidateUsername(username); err != nil {
		return err
	}
	name := username
	if err := c.presence.TryAdd(s.room, name); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("chat.username", name))

	s.username = name
	s.state = StateJoined

	seq := c.sequencer(s.room)
	seq.Lock()
	c.hub.Join(s.sub, s.room)
	c.bindMember(s.room, name, s.sub)
	c.hub.Broadcast(s.room, chat.UserJoinedEvent(name), s.sub)
	c.announcePresence(s.room)
	history, historyErr := c.readHistory(ctx, s.room)
	c.hub.Deliver(s.sub, chat.HistoryEvent(history))
	if historyErr != nil {
		span.RecordError(historyErr)
		s.Reject(historyErr)
	}
	for _, typer := range c.typing.ActiveTypers(s.room, name) {
		c.hub.Deliver(s.sub, chat.TypingEvent(typer))
	}
	seq.Unlock()

	log.Printf("User %s joined room %q (session %s, %d online)", name, s.room, s.id, c.presence.Count(s.room))
	return nil
}

// Send persists body and broadcasts the stored message to the whole room,
// sender included. A body that is empty after trimming is ignored.
func (s *Session) Send(ctx context.Context, body string) error {
	c := s.c
	ctx, span := c.tracer.Start(ctx, "session.send", trace.WithAttributes(
		attribute.String("chat.room", s.room),
		attribute.String("chat.session_id", s.id),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireJoined(); err != nil {
		return err
	}
	text, ok, err := chat.NormalizeBody(body)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	seq := c.sequencer(s.room)
	seq.Lock()
	defer seq.Unlock()

	if c.typing.ClearTyping(s.room, s.username) {
		c.hub.Broadcast(s.room, chat.StopTypingEvent(s.username), s.sub)
	}

	msg, err := c.store.Append(ctx, s.room, s.username, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append message")
		return chat.StoreFailure(err)
	}
	span.SetAttributes(attribute.Int64("chat.message_id", msg.ID))

	c.hub.Broadcast(s.room, chat.MessageEvent(msg), nil)
	return nil
}

// Typing marks the user as typing and tells the rest of the room.
func (s *Session) Typing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireJoined(); err != nil {
		return err
	}
	seq := s.c.sequencer(s.room)
	seq.Lock()
	defer seq.Unlock()

	s.c.typing.MarkTyping(s.room, s.username)
	s.c.hub.Broadcast(s.room, chat.TypingEvent(s.username), s.sub)
	return nil
}

// StopTyping clears the typing mark and tells the rest of the room.
func (s *Session) StopTyping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireJoined(); err != nil {
		return err
	}
	seq := s.c.sequencer(s.room)
	seq.Lock()
	defer seq.Unlock()

	s.c.typing.ClearTyping(s.room, s.username)
	s.c.hub.Broadcast(s.room, chat.StopTypingEvent(s.username), s.sub)
	return nil
}

// Disconnect releases the username, leaves the room and announces the
// departure. The session is Closed afterwards; repeated calls are no-ops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	wasJoined := s.state == StateJoined
	s.state = StateClosed
	if !wasJoined {
		return
	}

	c := s.c
	name := s.username

	seq := c.sequencer(s.room)
	seq.Lock()
	c.presence.Remove(s.room, name)
	c.hub.Leave(s.sub, s.room)
	c.unbindMember(s.room, name)
	if c.typing.ClearTyping(s.room, name) {
		c.hub.Broadcast(s.room, chat.StopTypingEvent(name), nil)
	}
	c.hub.Broadcast(s.room, chat.UserLeftEvent(name), nil)
	c.announcePresence(s.room)
	seq.Unlock()

	log.Printf("User %s left room %q (session %s, %d online)", name, s.room, s.id, c.presence.Count(s.room))
}

func (s *Session) requireJoined() error {
	switch s.state {
	case StateJoined:
		return nil
	case StateClosed:
		return chat.ErrSessionClosed
	default:
		return chat.ErrNotJoined
	}
}
