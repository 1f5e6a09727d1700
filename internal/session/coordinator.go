// Package session drives the chat protocol for each connection: it validates
// joins against presence, binds a username to the connection, and publishes
// messages, typing and presence events through the room hub.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/Tyrowin/roomchat/internal/typing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHistoryLimit is the number of messages delivered on join when none
// is configured.
const DefaultHistoryLimit = 50

const tracerName = "github.com/Tyrowin/roomchat/internal/session"

// Config tunes a Coordinator.
type Config struct {
	Room          string
	HistoryLimit  int
	TypingTimeout time.Duration
}

// Coordinator owns the shared room state and hands out Sessions.
//
// Publication to a room (store append plus broadcast, and the presence
// announcements on join and leave) is serialized by a per-room lock that is
// separate from the hub's membership lock. Every recipient therefore sees
// messages in store order, and a joiner receives each message either in its
// history or live, never both.
type Coordinator struct {
	room         string
	historyLimit int

	store    store.Store
	presence *presence.Registry
	hub      *broadcast.Hub
	typing   *typing.Tracker
	tracer   trace.Tracer

	seqMu      sync.Mutex
	sequencers map[string]*sync.Mutex

	// members maps room and username to the joined subscriber.
	memberMu sync.Mutex
	members  map[string]map[string]broadcast.Subscriber
}

// NewCoordinator wires a coordinator over the given store, presence registry
// and hub. The typing tracker is owned by the coordinator; call Close to
// stop its timers.
func NewCoordinator(cfg Config, st store.Store, reg *presence.Registry, hub *broadcast.Hub) *Coordinator {
	if cfg.Room == "" {
		cfg.Room = chat.DefaultRoom
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	c := &Coordinator{
		room:         cfg.Room,
		historyLimit: cfg.HistoryLimit,
		store:        st,
		presence:     reg,
		hub:          hub,
		tracer:       otel.Tracer(tracerName),
		sequencers:   make(map[string]*sync.Mutex),
		members:      make(map[string]map[string]broadcast.Subscriber),
	}
	c.typing = typing.NewTracker(cfg.TypingTimeout, c.typingExpired)
	return c
}

// HistoryLimit returns the number of messages delivered on join.
func (c *Coordinator) HistoryLimit() int {
	return c.historyLimit
}

// ActiveUsers returns the presence snapshot of the coordinator's room.
func (c *Coordinator) ActiveUsers() []string {
	return c.presence.Snapshot(c.room)
}

// Open creates a session in the Connected state for a new transport
// connection.
func (c *Coordinator) Open(sub broadcast.Subscriber) *Session {
	return &Session{
		id:    sub.ID(),
		room:  c.room,
		state: StateConnected,
		sub:   sub,
		c:     c,
	}
}

// Close stops pending typing timers.
func (c *Coordinator) Close() {
	c.typing.Close()
}

func (c *Coordinator) sequencer(room string) *sync.Mutex {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	seq, ok := c.sequencers[room]
	if !ok {
		seq = &sync.Mutex{}
		c.sequencers[room] = seq
	}
	return seq
}

// announcePresence broadcasts a fresh active-users snapshot. Callers hold the
// room sequencer so snapshots reach clients in the order they were taken.
func (c *Coordinator) announcePresence(room string) {
	c.hub.Broadcast(room, chat.ActiveUsersEvent(c.presence.Snapshot(room)), nil)
}

func (c *Coordinator) bindMember(room, username string, sub broadcast.Subscriber) {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()

	users, ok := c.members[room]
	if !ok {
		users = make(map[string]broadcast.Subscriber)
		c.members[room] = users
	}
	users[username] = sub
}

func (c *Coordinator) unbindMember(room, username string) {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()

	users := c.members[room]
	delete(users, username)
	if len(users) == 0 {
		delete(c.members, room)
	}
}

func (c *Coordinator) member(room, username string) broadcast.Subscriber {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()
	return c.members[room][username]
}

// typingExpired runs from a tracker timer. It takes the room sequencer so the
// stop-typing event is ordered against typing events published by the
// session, and drops the expiry if the user started typing again meanwhile.
func (c *Coordinator) typingExpired(room, username string) {
	seq := c.sequencer(room)
	seq.Lock()
	defer seq.Unlock()

	if c.typing.IsTyping(room, username) {
		return
	}
	log.Printf("Typing indicator for %s in room %q expired", username, room)
	c.hub.Broadcast(room, chat.StopTypingEvent(username), c.member(room, username))
}

func (c *Coordinator) readHistory(ctx context.Context, room string) ([]chat.Message, error) {
	history, err := c.store.ReadRecent(ctx, room, c.historyLimit)
	if err != nil {
		return nil, chat.HistoryFailure(err)
	}
	return history, nil
}

// Recent returns up to limit of the room's latest messages, oldest first.
func (c *Coordinator) Recent(ctx context.Context, limit int) ([]chat.Message, error) {
	ctx, span := c.tracer.Start(ctx, "session.recent")
	defer span.End()

	history, err := c.store.ReadRecent(ctx, c.room, limit)
	if err != nil {
		span.RecordError(err)
		return nil, chat.HistoryFailure(err)
	}
	if history == nil {
		history = []chat.Message{}
	}
	return history, nil
}
