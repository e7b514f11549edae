package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"recalld/internal/apperr"
	"recalld/internal/session"
)

type chatRequestBody struct {
	Message string `json:"message"`
}

func (s *Server) handleChatNew(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, r.PathValue("user_id"), "")
}

func (s *Server) handleChatContinue(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, r.PathValue("user_id"), r.PathValue("session_id"))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	ctx := r.Context()
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: invalid request body: %v", apperr.ErrValidation, err))
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		respondError(ctx, w, fmt.Errorf("%w: message is required", apperr.ErrValidation))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.handleChatStream(w, r, userID, sessionID, body.Message)
		return
	}

	result, err := s.chat.Chat(ctx, userID, body.Message, sessionID, time.Now().UTC())
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"response":      result.Response,
		"session_id":    result.SessionID,
		"memories_used": result.MemoriesUsed,
		"timestamp":     result.Timestamp,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, userID, sessionID, message string) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(ctx, w, fmt.Errorf("%w: streaming not supported by this connection", apperr.ErrStore))
		return
	}

	// A new session is created up front (instead of inside ChatService) so
	// session_created can be emitted before the first content chunk.
	if sessionID == "" {
		sess, err := s.sessions.Create(ctx, userID, session.TitleFromMessage(message))
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		sessionID = sess.ID
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	writeSSE(w, flusher, "session_created", map[string]string{"session_id": sessionID})

	handler := &sseDeltaWriter{w: w, flusher: flusher}
	result, err := s.chat.ChatStream(ctx, userID, message, sessionID, time.Now().UTC(), handler)
	if err != nil {
		writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}
	writeSSE(w, flusher, "complete", map[string]any{
		"session_id":    result.SessionID,
		"memories_used": result.MemoriesUsed,
		"timestamp":     result.Timestamp,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("user_id")
	sessions, err := s.sessions.List(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total_count": len(sessions)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session_id")
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if sess.UserID != r.PathValue("user_id") {
		respondError(ctx, w, apperr.ErrNotFound)
		return
	}
	messages, err := s.sessions.MessagesSince(ctx, sessionID, session.WatermarkUnset)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": messages})
}

func (s *Server) handleUpdateSessionTitle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session_id")
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if sess.UserID != r.PathValue("user_id") {
		respondError(ctx, w, apperr.ErrNotFound)
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: invalid request body: %v", apperr.ErrValidation, err))
		return
	}
	if err := s.sessions.UpdateTitle(ctx, sessionID, body.Title); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session_id")
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if sess.UserID != r.PathValue("user_id") {
		respondError(ctx, w, apperr.ErrNotFound)
		return
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("user_id")
	memories, err := s.vectors.GetByUser(ctx, userID, 0)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *Server) handleDeleteMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("user_id")
	if err := s.vectors.DeleteAll(ctx, userID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := s.health.CheckHealth(ctx)
	respondJSON(w, http.StatusOK, status)
}
