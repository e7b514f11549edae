package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"recalld/internal/llm"
	"recalld/internal/memory"
	"recalld/internal/queue"
	"recalld/internal/session"
)

// scriptedTopicProvider answers CompleteStructured with a fixed verdict, for
// driving the TopicDetector deterministically.
type scriptedTopicProvider struct {
	changed bool
}

func (p *scriptedTopicProvider) Name() string { return "scripted" }
func (p *scriptedTopicProvider) Complete(context.Context, string, []llm.Message) (string, error) {
	return "", nil
}
func (p *scriptedTopicProvider) CompleteStructured(context.Context, string, []llm.Message, llm.ToolSchema) (json.RawMessage, error) {
	return json.Marshal(map[string]bool{"changed": p.changed})
}
func (p *scriptedTopicProvider) StreamComplete(context.Context, string, []llm.Message, llm.StreamHandler) (string, error) {
	return "", nil
}

func newTestDetector(changed bool) *memory.TopicDetector {
	return memory.NewTopicDetector(&scriptedTopicProvider{changed: changed})
}

// capturingQueue records every enqueue call instead of running jobs, so
// tests can assert on exactly what the coordinator dispatched.
type capturingQueue struct {
	extractions []queue.ExtractionJob
	summaries   []queue.SummaryJob
}

func (q *capturingQueue) EnqueueExtraction(_ context.Context, job queue.ExtractionJob) (string, error) {
	q.extractions = append(q.extractions, job)
	return "job-extract", nil
}
func (q *capturingQueue) EnqueueSummary(_ context.Context, job queue.SummaryJob) (string, error) {
	q.summaries = append(q.summaries, job)
	return "job-summary", nil
}
func (q *capturingQueue) Run(context.Context, queue.Handler) error { return nil }
func (q *capturingQueue) Close() error                             { return nil }

// alwaysSeenDedupe reports every key as already present, simulating a
// duplicate on_turn call within the same TTL window.
type alwaysSeenDedupe struct{}

func (alwaysSeenDedupe) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func seedTwoTurnSession(t *testing.T, store session.Store, userID string) string {
	t.Helper()
	sess, err := store.Create(context.Background(), userID, "test session")
	require.NoError(t, err)
	_, err = store.AppendMessage(context.Background(), sess.ID, session.RoleUser, "I live in Tokyo.", time.Now().UTC())
	require.NoError(t, err)
	_, err = store.AppendMessage(context.Background(), sess.ID, session.RoleAssistant, "Got it.", time.Now().UTC())
	require.NoError(t, err)
	return sess.ID
}

func TestOnTurnNoWorkWhenAlreadyProcessed(t *testing.T) {
	store := session.NewInMemoryStore()
	sessionID := seedTwoTurnSession(t, store, "u1")
	require.NoError(t, store.AdvanceMemoryWatermark(context.Background(), sessionID, 2))

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(true), jobs, queue.NoopDedupeStore{}, 10)

	result, err := c.OnTurn(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	require.Equal(t, ResultNoWork, result)
	require.Empty(t, jobs.extractions)
}

func TestOnTurnNotReadyWithFewerThanTwoMessages(t *testing.T) {
	store := session.NewInMemoryStore()
	sess, err := store.Create(context.Background(), "u1", "t")
	require.NoError(t, err)
	_, err = store.AppendMessage(context.Background(), sess.ID, session.RoleUser, "hi", time.Now().UTC())
	require.NoError(t, err)

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(true), jobs, queue.NoopDedupeStore{}, 10)

	result, err := c.OnTurn(context.Background(), "u1", sess.ID)
	require.NoError(t, err)
	require.Equal(t, ResultNotReady, result)
}

func TestOnTurnNoChangeWhenTopicDetectorSaysUnchanged(t *testing.T) {
	store := session.NewInMemoryStore()
	sessionID := seedTwoTurnSession(t, store, "u1")

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(false), jobs, queue.NoopDedupeStore{}, 10)

	result, err := c.OnTurn(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	require.Equal(t, ResultNoChange, result)
	require.Empty(t, jobs.extractions)
}

func TestOnTurnDispatchesExtractionOnTopicChange(t *testing.T) {
	store := session.NewInMemoryStore()
	sessionID := seedTwoTurnSession(t, store, "u1")

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(true), jobs, queue.NoopDedupeStore{}, 10)

	result, err := c.OnTurn(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	require.Equal(t, ResultDispatched, result)
	require.Len(t, jobs.extractions, 1)
	require.Equal(t, sessionID, jobs.extractions[0].SessionID)
	require.Equal(t, 2, jobs.extractions[0].TargetWatermark)
	require.Empty(t, jobs.summaries, "summary threshold of 10 not yet reached")
}

func TestOnTurnDispatchesSummaryPastThreshold(t *testing.T) {
	store := session.NewInMemoryStore()
	sessionID := seedTwoTurnSession(t, store, "u1")

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(true), jobs, queue.NoopDedupeStore{}, 2)

	result, err := c.OnTurn(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	require.Equal(t, ResultDispatched, result)
	require.Len(t, jobs.summaries, 1)
	require.Equal(t, 2, jobs.summaries[0].TargetWatermark)
}

func TestOnTurnDedupeSuppressesDoubleDispatch(t *testing.T) {
	store := session.NewInMemoryStore()
	sessionID := seedTwoTurnSession(t, store, "u1")

	jobs := &capturingQueue{}
	c := NewCoordinator(store, newTestDetector(true), jobs, alwaysSeenDedupe{}, 10)

	result, err := c.OnTurn(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	require.Equal(t, ResultDispatched, result)
	require.Empty(t, jobs.extractions, "dedupe already saw this key, enqueue must be skipped")
}
