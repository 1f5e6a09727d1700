// Package typing keeps short-lived "is typing" state per room with a
// server-side expiry, so a client that vanishes without sending stop-typing
// does not leave a permanent indicator behind.
package typing

import (
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is the expiry applied when none is configured.
const DefaultTimeout = 3 * time.Second

// ExpireFunc is called, without any tracker lock held, after an entry times
// out.
type ExpireFunc func(room, username string)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Tracker records which users are typing in each room.
type Tracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire ExpireFunc
	rooms    map[string]map[string]*entry
	gen      uint64
	closed   bool
}

// NewTracker creates a tracker whose entries expire after timeout. A
// non-positive timeout selects DefaultTimeout. onExpire may be nil.
func NewTracker(timeout time.Duration, onExpire ExpireFunc) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		timeout:  timeout,
		onExpire: onExpire,
		rooms:    make(map[string]map[string]*entry),
	}
}

// MarkTyping moves username to Typing, or refreshes its deadline if it
// already is. It reports whether this was a transition from Idle.
func (t *Tracker) MarkTyping(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	users, ok := t.rooms[room]
	if !ok {
		users = make(map[string]*entry)
		t.rooms[room] = users
	}

	existing, wasTyping := users[username]
	if wasTyping {
		existing.timer.Stop()
	}

	t.gen++
	gen := t.gen
	users[username] = &entry{
		gen: gen,
		timer: time.AfterFunc(t.timeout, func() {
			t.expire(room, username, gen)
		}),
	}
	return !wasTyping
}

// ClearTyping moves username to Idle immediately and reports whether it was
// typing.
func (t *Tracker) ClearTyping(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.rooms[room][username]
	if !ok {
		return false
	}
	e.timer.Stop()
	t.deleteLocked(room, username)
	return true
}

// IsTyping reports whether username is currently typing in room.
func (t *Tracker) IsTyping(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[room][username]
	return ok
}

// ActiveTypers returns the sorted usernames typing in room, excluding the
// asking user.
func (t *Tracker) ActiveTypers(room, exclude string) []string {
	t.mu.Lock()
	users := t.rooms[room]
	names := make([]string, 0, len(users))
	for name := range users {
		if name != exclude {
			names = append(names, name)
		}
	}
	t.mu.Unlock()

	sort.Strings(names)
	return names
}

// Close stops every pending timer. Later MarkTyping calls are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, users := range t.rooms {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.rooms = make(map[string]map[string]*entry)
}

func (t *Tracker) expire(room, username string, gen uint64) {
	t.mu.Lock()
	e, ok := t.rooms[room][username]
	if !ok || e.gen != gen {
		// Refreshed or cleared since this timer was armed.
		t.mu.Unlock()
		return
	}
	t.deleteLocked(room, username)
	onExpire := t.onExpire
	t.mu.Unlock()

	if onExpire != nil {
		onExpire(room, username)
	}
}

func (t *Tracker) deleteLocked(room, username string) {
	users := t.rooms[room]
	delete(users, username)
	if len(users) == 0 {
		delete(t.rooms, room)
	}
}
