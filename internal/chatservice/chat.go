// Package chatservice implements the RAG-context-assembly and generation
// entry point: it retrieves memories and the
// rolling summary, calls the LLM, appends both turns to the session, and
// hands off to the LifecycleCoordinator — all through one shared
// assembleTurn step so the batched and streaming variants never fork their
// prompt construction.
package chatservice

import (
	"context"
	"fmt"
	"time"

	"recalld/internal/lifecycle"
	"recalld/internal/llm"
	"recalld/internal/memory"
	"recalld/internal/observability"
	"recalld/internal/session"
)

// SystemPrompt is the base instruction prefixed to every chat turn, ahead of
// the retrieved memories, the rolling summary, and recent session context.
const SystemPrompt = `You are a helpful assistant with persistent memory of this user across sessions.
Use the memories and summary below to personalize your reply, but never mention that you were given them explicitly.
If a memory conflicts with something the user just said, trust what they just said.`

// Service assembles retrieval context and drives generation for a chat
// turn, in both the batched and the streaming variants.
type Service struct {
	sessions          session.Store
	retriever         *memory.Retriever
	provider          llm.Provider
	coordinator       *lifecycle.Coordinator
	memorySearchLimit int
	messageLimit      int
}

// NewService constructs a Service.
func NewService(sessions session.Store, retriever *memory.Retriever, provider llm.Provider, coordinator *lifecycle.Coordinator, memorySearchLimit, messageLimit int) *Service {
	return &Service{
		sessions:          sessions,
		retriever:         retriever,
		provider:          provider,
		coordinator:       coordinator,
		memorySearchLimit: memorySearchLimit,
		messageLimit:      messageLimit,
	}
}

// Result is the outcome of a chat turn.
type Result struct {
	Response     string
	SessionID    string
	MemoriesUsed []string
	Timestamp    time.Time
}

// turn is the shared context-assembly output consumed by both Chat and
// ChatStream's generation step.
type turn struct {
	instructions string
	memories     []string
}

// assembleTurn retrieves memories, the current summary, and recent session
// context for sessionID, and builds the single instruction string passed to
// the LLM. It never forks between the batched and streaming paths: both
// call this, then branch only on how the model's output is consumed.
func (s *Service) assembleTurn(ctx context.Context, userID, sessionID, message string) (turn, error) {
	memories, err := s.retriever.Search(ctx, message, userID, s.memorySearchLimit)
	if err != nil {
		return turn{}, fmt.Errorf("chatservice: retrieve memories: %w", err)
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return turn{}, fmt.Errorf("chatservice: get session: %w", err)
	}
	recent, err := s.sessions.RecentMessages(ctx, sessionID, s.messageLimit)
	if err != nil {
		return turn{}, fmt.Errorf("chatservice: recent messages: %w", err)
	}

	contents := make([]string, len(memories))
	for i, m := range memories {
		contents[i] = m.Content
	}

	instructions := fmt.Sprintf(
		"%s\nMEMORIES: %v\nSUMMARY: %s\nSESSION CONTEXT: %s",
		SystemPrompt, contents, sess.Summary, renderRecent(recent),
	)
	return turn{instructions: instructions, memories: contents}, nil
}

func renderRecent(recent []session.Message) string {
	out := ""
	for _, m := range recent {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}

// resolveSession returns sessionID's session, creating a new one titled
// from the first 50 characters of message when sessionID is empty.
func (s *Service) resolveSession(ctx context.Context, userID, sessionID, message string) (*session.Session, error) {
	if sessionID != "" {
		return s.sessions.Get(ctx, sessionID)
	}
	return s.sessions.Create(ctx, userID, session.TitleFromMessage(message))
}

// Chat runs the batched RAG pipeline: retrieve, call the LLM, append both
// turns, and hand off to the LifecycleCoordinator.
func (s *Service) Chat(ctx context.Context, userID, message string, sessionID string, requestTS time.Time) (Result, error) {
	sess, err := s.resolveSession(ctx, userID, sessionID, message)
	if err != nil {
		return Result{}, fmt.Errorf("chatservice: resolve session: %w", err)
	}

	t, err := s.assembleTurn(ctx, userID, sess.ID, message)
	if err != nil {
		return Result{}, err
	}

	text, err := s.provider.Complete(ctx, t.instructions, []llm.Message{{Role: llm.RoleUser, Content: message}})
	if err != nil {
		return Result{}, fmt.Errorf("chatservice: complete: %w", err)
	}

	return s.finish(ctx, userID, sess.ID, message, text, t, requestTS)
}

// ChatStream runs the same pipeline as Chat, but forwards the LLM's output
// to handler as it arrives; the post-turn append and coordinator call happen
// only after the stream terminates and its full text has been captured, so
// a client disconnect mid-stream still leaves the session consistent (the
// partial text accumulated so far is still appended).
func (s *Service) ChatStream(ctx context.Context, userID, message, sessionID string, requestTS time.Time, handler llm.StreamHandler) (Result, error) {
	sess, err := s.resolveSession(ctx, userID, sessionID, message)
	if err != nil {
		return Result{}, fmt.Errorf("chatservice: resolve session: %w", err)
	}

	t, err := s.assembleTurn(ctx, userID, sess.ID, message)
	if err != nil {
		return Result{}, err
	}

	text, err := s.provider.StreamComplete(ctx, t.instructions, []llm.Message{{Role: llm.RoleUser, Content: message}}, handler)
	if text == "" {
		if err != nil {
			return Result{}, fmt.Errorf("chatservice: stream complete: %w", err)
		}
		return Result{}, fmt.Errorf("chatservice: stream complete: empty response")
	}
	// A client disconnect or upstream cancellation mid-stream still leaves a
	// partial text, which is appended below so message ordering for the next
	// turn is preserved; only a completely empty result is treated as fatal.
	// The append and coordinator call run on a detached context: the request
	// context is already canceled after a disconnect.
	return s.finish(context.WithoutCancel(ctx), userID, sess.ID, message, text, t, requestTS)
}

// finish appends both turns of the exchange to the session and invokes the
// LifecycleCoordinator, shared by the batched and streaming paths.
func (s *Service) finish(ctx context.Context, userID, sessionID, message, response string, t turn, requestTS time.Time) (Result, error) {
	log := observability.LoggerWithTrace(ctx)

	if _, err := s.sessions.AppendMessage(ctx, sessionID, session.RoleUser, message, requestTS); err != nil {
		return Result{}, fmt.Errorf("chatservice: append user message: %w", err)
	}
	respTS := time.Now().UTC()
	if _, err := s.sessions.AppendMessage(ctx, sessionID, session.RoleAssistant, response, respTS); err != nil {
		return Result{}, fmt.Errorf("chatservice: append assistant message: %w", err)
	}

	if _, err := s.coordinator.OnTurn(ctx, userID, sessionID); err != nil {
		// The turn itself succeeded; a lifecycle dispatch failure is logged,
		// not surfaced, since the next turn's OnTurn call retries the same
		// unprocessed window.
		log.Error().Err(err).Str("session_id", sessionID).Msg("chatservice: lifecycle on_turn failed")
	}

	return Result{
		Response:     response,
		SessionID:    sessionID,
		MemoriesUsed: t.memories,
		Timestamp:    respTS,
	}, nil
}
