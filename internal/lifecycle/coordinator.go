// Package lifecycle implements the LifecycleCoordinator: the per-turn
// decision of whether unprocessed session messages are worth extracting,
// and the background Worker that actually runs extraction/consolidation and
// summarization once a job is dequeued.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"recalld/internal/memory"
	"recalld/internal/observability"
	"recalld/internal/queue"
	"recalld/internal/session"
)

// Result is the outcome of one OnTurn evaluation.
type Result string

const (
	ResultNoWork     Result = "no_work"
	ResultNotReady   Result = "not_ready"
	ResultNoChange   Result = "no_change"
	ResultDispatched Result = "dispatched"
)

// DedupeTTL bounds how long an enqueue-suppression key survives; it only
// needs to outlive a single in-flight job attempt.
const DedupeTTL = 10 * time.Minute

// Coordinator orchestrates the topic-change gate and background job
// dispatch. Watermarks are advanced only by the Worker on clean
// success, never here: a failed job leaves the same window to be retried on
// the next turn, which stays safe because the Worker's effects are
// idempotent.
type Coordinator struct {
	sessions         session.Store
	detector         *memory.TopicDetector
	jobs             queue.JobQueue
	dedupe           queue.DedupeStore
	summaryThreshold int
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(sessions session.Store, detector *memory.TopicDetector, jobs queue.JobQueue, dedupe queue.DedupeStore, summaryThreshold int) *Coordinator {
	return &Coordinator{sessions: sessions, detector: detector, jobs: jobs, dedupe: dedupe, summaryThreshold: summaryThreshold}
}

// OnTurn is the entry point called after both the user and assistant
// messages for a turn have been appended to the session.
func (c *Coordinator) OnTurn(ctx context.Context, userID, sessionID string) (Result, error) {
	log := observability.LoggerWithTrace(ctx)

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("lifecycle: get session: %w", err)
	}

	current := sess.MessageCount
	processed := sess.LastMemoryProcessedAt
	if current <= processed {
		return ResultNoWork, nil
	}

	window, err := c.sessions.MessagesSince(ctx, sessionID, processed)
	if err != nil {
		return "", fmt.Errorf("lifecycle: messages since: %w", err)
	}
	if len(window) < 2 {
		return ResultNotReady, nil
	}

	if !c.detector.Detect(ctx, window) {
		return ResultNoChange, nil
	}

	snapshot := make([]queue.MessageSnapshot, len(window))
	for i, m := range window {
		snapshot[i] = queue.MessageSnapshot{Role: string(m.Role), Content: m.Content}
	}

	extractionKey := fmt.Sprintf("extract:%s:%d", sessionID, current)
	if fresh, err := c.dedupe.SetIfAbsent(ctx, extractionKey, DedupeTTL); err != nil {
		log.Warn().Err(err).Msg("lifecycle: dedupe check failed, enqueueing anyway")
	} else if !fresh {
		log.Info().Str("session_id", sessionID).Int("watermark", current).Msg("lifecycle: extraction already in flight, skipping enqueue")
	} else if _, err := c.jobs.EnqueueExtraction(ctx, queue.ExtractionJob{
		UserID:          userID,
		SessionID:       sessionID,
		Window:          snapshot,
		TargetWatermark: current,
	}); err != nil {
		return "", fmt.Errorf("lifecycle: enqueue extraction: %w", err)
	}

	if current-sess.LastSummaryGeneratedAt >= c.summaryThreshold {
		summaryKey := fmt.Sprintf("summary:%s:%d", sessionID, current)
		if fresh, err := c.dedupe.SetIfAbsent(ctx, summaryKey, DedupeTTL); err != nil {
			log.Warn().Err(err).Msg("lifecycle: dedupe check failed, enqueueing anyway")
		} else if !fresh {
			log.Info().Str("session_id", sessionID).Int("watermark", current).Msg("lifecycle: summary already in flight, skipping enqueue")
		} else if _, err := c.jobs.EnqueueSummary(ctx, queue.SummaryJob{
			SessionID:       sessionID,
			TargetWatermark: current,
		}); err != nil {
			return "", fmt.Errorf("lifecycle: enqueue summary: %w", err)
		}
	}

	return ResultDispatched, nil
}
