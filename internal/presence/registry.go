// Package presence tracks which usernames are currently joined to each room.
package presence

import (
	"sort"
	"sync"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Registry is the single source of truth for who is online. All methods are
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// TryAdd claims username in room. It returns chat.ErrUsernameTaken if the
// name is already held; of two concurrent claims exactly one succeeds.
func (r *Registry) TryAdd(room, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	if _, taken := members[username]; taken {
		return chat.ErrUsernameTaken
	}
	members[username] = struct{}{}
	return nil
}

// Remove releases username in room. Removing an absent name is a no-op.
func (r *Registry) Remove(room, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, username)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Contains reports whether username is joined to room.
func (r *Registry) Contains(room, username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][username]
	return ok
}

// Count returns the number of usernames joined to room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Snapshot returns the sorted usernames joined to room at one point in time.
func (r *Registry) Snapshot(room string) []string {
	r.mu.RLock()
	members := r.rooms[room]
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
