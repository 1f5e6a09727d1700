package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server owns the HTTP listener and every live WebSocket connection.
type Server struct {
	cfg      Config
	coord    *session.Coordinator
	origins  *originPolicy
	upgrader websocket.Upgrader
	router   *httprouter.Router
	http     *http.Server

	// baseCtx outlives individual requests; canceling it tells every
	// connection to close.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// New builds a server for coord using cfg. cfg should already be sanitized.
func New(cfg Config, coord *session.Coordinator) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		coord:   coord,
		origins: newOriginPolicy(cfg.AllowedOrigins),
		router:  httprouter.New(),
		baseCtx: ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         cfg.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown. It
// returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("Server listening on %s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) activeConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown stops accepting requests, closes every WebSocket connection and
// waits for their goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.mu.Lock()
	count := len(s.clients)
	s.cancel()
	s.mu.Unlock()
	log.Printf("Closing %d client connections...", count)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Connection shutdown completed successfully")
		return err
	case <-ctx.Done():
		log.Println("Connection shutdown timeout reached, some goroutines may still be running")
		return errors.Join(err, ctx.Err())
	}
}

// serveClient runs one connection to completion.
func (s *Server) serveClient(client *Client) {
	defer s.wg.Done()

	s.mu.Lock()
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	log.Printf("Client %s connected from %s. Total clients: %d", client.ID(), client.addr, count)

	client.run(s.baseCtx)

	s.mu.Lock()
	delete(s.clients, client)
	count = len(s.clients)
	s.mu.Unlock()
	log.Printf("Client %s from %s disconnected. Total clients: %d", client.ID(), client.addr, count)
}
