// Package broadcast fans room events out to every connected member of a
// room via the Hub type.
package broadcast

import (
	"log"
	"sync"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Subscriber is one outbound transport queue.
//
// Enqueue must never block: it returns false when the queue is full or
// closed. Evict closes the queue; the transport is expected to close its
// connection once the queue drains. Evict may be called more than once.
type Subscriber interface {
	ID() string
	Enqueue(payload []byte) bool
	Evict()
}

// Hub owns the mapping from room to member subscribers and delivers events to
// them. Membership changes and sends are serialized through one RWMutex, so a
// broadcast that starts after Leave returns never reaches the departed
// subscriber.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
}

// NewHub creates a hub with no rooms.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Subscriber]struct{})}
}

// Join adds sub to room. Joining twice is a no-op.
func (h *Hub) Join(sub Subscriber, room string) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	count := len(members)
	h.mu.Unlock()

	log.Printf("Subscriber %s joined room %q. Members: %d", sub.ID(), room, count)
}

// Leave removes sub from room. Leaving a room sub is not in is a no-op.
func (h *Hub) Leave(sub Subscriber, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	_, wasMember := members[sub]
	delete(members, sub)
	count := len(members)
	if count == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	if wasMember {
		log.Printf("Subscriber %s left room %q. Members: %d", sub.ID(), room, count)
	}
}

// Members returns the number of subscribers in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// isMember reports whether sub is currently in room.
func (h *Hub) isMember(sub Subscriber, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][sub]
	return ok
}

// Broadcast delivers event to every member of room except exclude (nil for
// everyone) and returns the number of successful deliveries. Members whose
// queue rejects the event are evicted after the fan-out completes; they
// never hold up delivery to the others.
func (h *Hub) Broadcast(room string, event chat.Event, exclude Subscriber) int {
	payload, err := event.Encode()
	if err != nil {
		log.Printf("Dropping %s broadcast to room %q: %v", event.Name, room, err)
		return 0
	}

	members := h.memberSnapshot(room)
	var failed []Subscriber
	delivered := 0
	for _, sub := range members {
		if exclude != nil && sub == exclude {
			continue
		}
		switch h.safeSend(room, sub, payload) {
		case sendOK:
			delivered++
		case sendFailed:
			failed = append(failed, sub)
		}
	}

	h.evict(failed)
	return delivered
}

// Deliver sends event to sub alone, regardless of room membership. A
// subscriber that rejects it is evicted.
func (h *Hub) Deliver(sub Subscriber, event chat.Event) bool {
	if sub == nil {
		return false
	}
	payload, err := event.Encode()
	if err != nil {
		log.Printf("Dropping %s event to %s: %v", event.Name, sub.ID(), err)
		return false
	}
	if enqueue(sub, payload) {
		return true
	}
	h.evict([]Subscriber{sub})
	return false
}

type sendResult int

const (
	sendOK sendResult = iota
	sendFailed
	sendSkipped
)

// safeSend enqueues payload for sub if sub is still a member of room. The
// read lock is held across the membership check and the enqueue so a
// concurrent Leave either happens entirely before or entirely after.
func (h *Hub) safeSend(room string, sub Subscriber, payload []byte) sendResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.rooms[room][sub]; !ok {
		return sendSkipped
	}
	if enqueue(sub, payload) {
		return sendOK
	}
	return sendFailed
}

func enqueue(sub Subscriber, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic delivering to %s: %v", sub.ID(), r)
			ok = false
		}
	}()
	return sub.Enqueue(payload)
}

func (h *Hub) memberSnapshot(room string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]Subscriber, 0, len(h.rooms[room]))
	for sub := range h.rooms[room] {
		members = append(members, sub)
	}
	return members
}

// evict removes subs from every room, then closes their queues outside the
// lock.
func (h *Hub) evict(subs []Subscriber) {
	if len(subs) == 0 {
		return
	}

	h.mu.Lock()
	for _, sub := range subs {
		for room, members := range h.rooms {
			delete(members, sub)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		log.Printf("Subscriber %s evicted: send queue full or closed", sub.ID())
		sub.Evict()
	}
}
