package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"recalld/internal/embedding"
	"recalld/internal/llm"
	"recalld/internal/memory"
	"recalld/internal/queue"
	"recalld/internal/session"
)

// fakeWorkerProvider extracts one fixed memory and summarizes to a fixed
// string, regardless of input, so worker tests can assert on the resulting
// store/watermark state without a real LLM.
type fakeWorkerProvider struct{}

func (fakeWorkerProvider) Name() string { return "fake" }

func (fakeWorkerProvider) Complete(context.Context, string, []llm.Message) (string, error) {
	return "a rolling summary", nil
}

func (fakeWorkerProvider) CompleteStructured(_ context.Context, _ string, _ []llm.Message, schema llm.ToolSchema) (json.RawMessage, error) {
	if schema.Name == "record_memories" {
		return json.Marshal(map[string]any{
			"memories": []map[string]string{{"content": "User lives in Tokyo.", "type": "personal"}},
		})
	}
	return json.Marshal(map[string]any{"actions": []any{}})
}

func (fakeWorkerProvider) StreamComplete(context.Context, string, []llm.Message, llm.StreamHandler) (string, error) {
	return "", nil
}

func newTestWorker(t *testing.T, sessions session.Store, vectors memory.VectorStore) *Worker {
	t.Helper()
	provider := fakeWorkerProvider{}
	embedder := embedding.NewDeterministic(8, true, 0)
	retriever := memory.NewRetriever(embedder, vectors)
	extractor := memory.NewExtractor(provider)
	consolidator := memory.NewConsolidator(provider, embedder, retriever, 5)
	summarizer := memory.NewSummarizer(provider, embedder)
	return NewWorker(sessions, vectors, extractor, consolidator, summarizer, "gpt-4o", 20, "", nil)
}

func TestHandleExtractionWritesMemoryAndAdvancesWatermark(t *testing.T) {
	sessions := session.NewInMemoryStore()
	vectors := memory.NewInMemoryStore()
	worker := newTestWorker(t, sessions, vectors)

	sessionID := seedTwoTurnSession(t, sessions, "u1")
	job := queue.ExtractionJob{
		UserID:    "u1",
		SessionID: sessionID,
		Window: []queue.MessageSnapshot{
			{Role: "user", Content: "I live in Tokyo."},
			{Role: "assistant", Content: "Got it."},
		},
		TargetWatermark: 2,
	}

	require.NoError(t, worker.HandleExtraction(context.Background(), job))

	mems, err := vectors.GetByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	require.Equal(t, "User lives in Tokyo.", mems[0].Content)

	sess, err := sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, sess.LastMemoryProcessedAt)
}

func TestHandleExtractionIsIdempotentOnRetry(t *testing.T) {
	sessions := session.NewInMemoryStore()
	vectors := memory.NewInMemoryStore()
	worker := newTestWorker(t, sessions, vectors)

	sessionID := seedTwoTurnSession(t, sessions, "u1")
	job := queue.ExtractionJob{
		UserID:    "u1",
		SessionID: sessionID,
		Window: []queue.MessageSnapshot{
			{Role: "user", Content: "I live in Tokyo."},
			{Role: "assistant", Content: "Got it."},
		},
		TargetWatermark: 2,
	}

	require.NoError(t, worker.HandleExtraction(context.Background(), job))
	require.NoError(t, worker.HandleExtraction(context.Background(), job))

	sess, err := sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, sess.LastMemoryProcessedAt, "re-running the same job must not regress the watermark")
}

func TestHandleSummaryAdvancesSummaryWatermark(t *testing.T) {
	sessions := session.NewInMemoryStore()
	vectors := memory.NewInMemoryStore()
	worker := newTestWorker(t, sessions, vectors)

	sessionID := seedTwoTurnSession(t, sessions, "u1")
	job := queue.SummaryJob{SessionID: sessionID, TargetWatermark: 2}

	require.NoError(t, worker.HandleSummary(context.Background(), job))

	sess, err := sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, 2, sess.LastSummaryGeneratedAt)
	require.Equal(t, "a rolling summary", sess.Summary)
	require.NotEmpty(t, sess.SummaryVector)
}

func TestHandleSummaryNotFoundSessionPropagatesError(t *testing.T) {
	sessions := session.NewInMemoryStore()
	vectors := memory.NewInMemoryStore()
	worker := newTestWorker(t, sessions, vectors)

	err := worker.HandleSummary(context.Background(), queue.SummaryJob{SessionID: "missing", TargetWatermark: 1})
	require.Error(t, err)
}
