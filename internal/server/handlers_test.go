package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := get(t, env.http.URL+"/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.WithinDuration(t, time.Now(), body.Timestamp, 5*time.Second)
}

func TestMessagesHandler(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := env.store.Append(ctx, chat.DefaultRoom, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	_, err := env.store.Append(ctx, "elsewhere", "bob", "not here")
	require.NoError(t, err)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantFirst string
	}{
		{name: "default limit", query: "", wantCount: 50, wantFirst: "m10"},
		{name: "explicit limit", query: "?limit=3", wantCount: 3, wantFirst: "m57"},
		{name: "capped", query: "?limit=1000", wantCount: 60, wantFirst: "m0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, env.http.URL+"/api/messages"+tt.query)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var messages []chat.Message
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
			require.Len(t, messages, tt.wantCount)
			assert.Equal(t, tt.wantFirst, messages[0].Body)
			assert.Equal(t, "m59", messages[len(messages)-1].Body)
		})
	}
}

func TestMessagesHandlerEmptyRoom(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := get(t, env.http.URL+"/api/messages")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw))
}

func TestMessagesHandlerBadLimit(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, q := range []string{"abc", "0", "-5"} {
		resp := get(t, env.http.URL+"/api/messages?limit="+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", q)
	}
}

func TestMessagesHandlerStoreFailure(t *testing.T) {
	env := newTestEnv(t, brokenStore{}, nil)

	resp := get(t, env.http.URL+"/api/messages")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, chat.ErrHistoryUnavailable.Message, body.Error)
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req, err := http.NewRequest(method, env.http.URL+"/ws", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := get(t, env.http.URL+"/test")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
