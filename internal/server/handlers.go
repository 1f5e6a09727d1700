package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

// maxRecentLimit caps /api/messages?limit.
const maxRecentLimit = 200

// handleWebSocket upgrades the request, opens a chat session for it and
// starts the connection pumps. The pumps run on the server's base context
// since the request context ends when this handler returns.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg)
	client.Attach(s.coord.Open(client))
	go s.serveClient(client)
}

// handleMethodNotAllowed keeps the explicit message for non-GET requests.
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleMessages serves the room's most recent messages, oldest first.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := s.coord.HistoryLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	messages, err := s.coord.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Error reading recent messages: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
