package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	store store.Store
	wsURL string
}

func newTestEnv(t *testing.T, st store.Store, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.StoreDriver = StoreMemory
	if mutate != nil {
		mutate(&cfg)
	}
	cfg = SanitizeConfig(cfg)

	if st == nil {
		st = store.NewMemory()
	}
	coord := session.NewCoordinator(session.Config{
		Room:          cfg.Room,
		HistoryLimit:  cfg.HistoryLimit,
		TypingTimeout: cfg.TypingTimeout,
	}, st, presence.NewRegistry(), broadcast.NewHub())

	srv := New(cfg, coord)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
		coord.Close()
		_ = st.Close()
	})

	return &testEnv{
		srv:   srv,
		http:  ts,
		store: st,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := e.dialOrigin(testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) dialOrigin(origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(e.wsURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil reads events until one named name arrives.
func readUntil(t *testing.T, conn *websocket.Conn, name string) wireEvent {
	t.Helper()
	for i := 0; i < 50; i++ {
		ev := readEvent(t, conn)
		if ev.Event == name {
			return ev
		}
	}
	t.Fatalf("event %q not received", name)
	return wireEvent{}
}

// join sends a join frame and consumes the joiner's initial events.
func join(t *testing.T, conn *websocket.Conn, username string) []chat.Message {
	t.Helper()
	send(t, conn, chat.EventJoin, username)
	hist := readUntil(t, conn, chat.EventChatHistory)
	var history []chat.Message
	require.NoError(t, json.Unmarshal(hist.Data, &history))
	return history
}

func decode[T any](t *testing.T, ev wireEvent) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, string, string, string) (chat.Message, error) {
	return chat.Message{}, errors.New("disk I/O error")
}

func (brokenStore) ReadRecent(context.Context, string, int) ([]chat.Message, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenStore) Close() error { return nil }
