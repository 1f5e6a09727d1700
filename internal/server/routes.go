package server

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowed = http.HandlerFunc(handleMethodNotAllowed)

	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/messages", s.handleMessages)
	s.router.GET("/ws", s.handleWebSocket)
}
