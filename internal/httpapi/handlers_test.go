package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"recalld/internal/chatservice"
	"recalld/internal/embedding"
	"recalld/internal/lifecycle"
	"recalld/internal/llm"
	"recalld/internal/memory"
	"recalld/internal/queue"
	"recalld/internal/session"
)

// fakeProvider is a scripted llm.Provider double, in the style of
// internal/memory's fakeProvider, sized for exercising the HTTP surface
// without a real LLM backend.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) Complete(context.Context, string, []llm.Message) (string, error) {
	return "hello there", nil
}

func (fakeProvider) CompleteStructured(context.Context, string, []llm.Message, llm.ToolSchema) (json.RawMessage, error) {
	return json.RawMessage(`{"changed": false}`), nil
}

func (fakeProvider) StreamComplete(_ context.Context, _ string, _ []llm.Message, handler llm.StreamHandler) (string, error) {
	handler.OnDelta("hello")
	handler.OnDelta(" there")
	return "hello there", nil
}

type fakeHealth struct{}

func (fakeHealth) CheckHealth(context.Context) map[string]string {
	return map[string]string{"status": "ok"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sessions := session.NewInMemoryStore()
	vectors := memory.NewInMemoryStore()
	embedder := embedding.NewDeterministic(8, true, 0)
	provider := fakeProvider{}

	retriever := memory.NewRetriever(embedder, vectors)
	detector := memory.NewTopicDetector(provider)
	q := queue.NewInMemoryQueue(1, 8)
	t.Cleanup(func() { _ = q.Close() })
	coordinator := lifecycle.NewCoordinator(sessions, detector, q, queue.NoopDedupeStore{}, 10)
	chat := chatservice.NewService(sessions, retriever, provider, coordinator, 10, 20)

	return NewServer(chat, sessions, vectors, fakeHealth{})
}

func TestChatNewCreatesSessionAndRespondsJSON(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"message": "My name is John."}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/u1/new", body)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "hello there", payload["response"])
	require.NotEmpty(t, payload["session_id"])
}

func TestChatMissingMessageIsValidationError(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/u1/new", strings.NewReader(`{"message": ""}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "validation", env.ErrorCode)
	require.Equal(t, rec.Header().Get("X-Request-ID"), env.RequestID)
}

func TestChatContinueReusesSession(t *testing.T) {
	srv := newTestServer(t)

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/chat/u1/new", strings.NewReader(`{"message": "hi"}`)))
	var firstPayload map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstPayload))
	sessionID := firstPayload["session_id"].(string)

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/chat/u1/"+sessionID, strings.NewReader(`{"message": "again"}`)))
	require.Equal(t, http.StatusOK, second.Code)

	var secondPayload map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondPayload))
	require.Equal(t, sessionID, secondPayload["session_id"])
}

func TestGetSessionNotFoundForForeignUser(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/u1/new", strings.NewReader(`{"message": "hi"}`)))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	sessionID := payload["session_id"].(string)

	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/chat/someone-else/sessions/"+sessionID, nil))
	require.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestListAndDeleteMemories(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/u1/memories", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, httptest.NewRequest(http.MethodDelete, "/chat/u1/memories", nil))
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload["status"])
}
