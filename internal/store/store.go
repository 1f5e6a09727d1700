// Package store defines the durable message log the chat core appends to and
// reads history from, plus an in-process implementation.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is an append-only log of chat messages keyed by room.
//
// Append assigns the message ID and timestamp; IDs are strictly increasing in
// append order and define the canonical order of a room. ReadRecent returns
// at most limit messages of a room, oldest first.
type Store interface {
	Append(ctx context.Context, room, username, body string) (chat.Message, error)
	ReadRecent(ctx context.Context, room string, limit int) ([]chat.Message, error)
	Close() error
}

// Memory keeps messages in process memory. Intended for tests and for
// running without a database.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	messages map[string][]chat.Message
	closed   bool
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string][]chat.Message),
		now:      time.Now,
	}
}

// Append stores a message and returns it with its assigned ID and timestamp.
func (m *Memory) Append(ctx context.Context, room, username, body string) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return chat.Message{}, ErrClosed
	}

	m.nextID++
	msg := chat.Message{
		ID:        m.nextID,
		Username:  username,
		Body:      body,
		Room:      room,
		Timestamp: m.now().UTC().Truncate(time.Millisecond),
	}
	m.messages[room] = append(m.messages[room], msg)
	return msg, nil
}

// ReadRecent returns the last limit messages of room, oldest first.
func (m *Memory) ReadRecent(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	messages := m.messages[room]
	if limit <= 0 || limit > len(messages) {
		limit = len(messages)
	}

	result := make([]chat.Message, limit)
	copy(result, messages[len(messages)-limit:])
	return result, nil
}

// Close marks the store closed. Subsequent calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
