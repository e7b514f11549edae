// Package httpapi binds the ChatService/SessionStore/VectorStore core to
// the service's HTTP surface: chat (batched and SSE
// streaming), session admin, memory admin, and a health check.
package httpapi

import (
	"context"
	"net/http"

	"recalld/internal/chatservice"
	"recalld/internal/memory"
	"recalld/internal/session"
)

// HealthChecker reports backing-store liveness for GET /health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) map[string]string
}

// Server wraps an http.ServeMux with the chat HTTP surface.
type Server struct {
	chat     *chatservice.Service
	sessions session.Store
	vectors  memory.VectorStore
	health   HealthChecker

	mux http.Handler
}

// NewServer constructs a Server wired to the given core components.
func NewServer(chat *chatservice.Service, sessions session.Store, vectors memory.VectorStore, health HealthChecker) *Server {
	s := &Server{chat: chat, sessions: sessions, vectors: vectors, health: health}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.mux = requestIDMiddleware(mux)
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/{user_id}/new", s.handleChatNew)
	mux.HandleFunc("POST /chat/{user_id}/{session_id}", s.handleChatContinue)
	mux.HandleFunc("GET /chat/{user_id}/sessions", s.handleListSessions)
	mux.HandleFunc("GET /chat/{user_id}/sessions/{session_id}", s.handleGetSession)
	mux.HandleFunc("PUT /chat/{user_id}/sessions/{session_id}", s.handleUpdateSessionTitle)
	mux.HandleFunc("DELETE /chat/{user_id}/sessions/{session_id}", s.handleDeleteSession)
	mux.HandleFunc("GET /chat/{user_id}/memories", s.handleListMemories)
	mux.HandleFunc("DELETE /chat/{user_id}/memories", s.handleDeleteMemories)
	mux.HandleFunc("GET /health", s.handleHealth)
}
