package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"recalld/internal/memory"
	"recalld/internal/observability"
	"recalld/internal/queue"
	"recalld/internal/session"
)

// Worker implements queue.Handler: it runs the Extractor -> Consolidator ->
// VectorStore write path for ExtractionJobs, and the Summarizer ->
// SessionStore path for SummaryJobs, advancing the corresponding watermark
// only after the write(s) succeed.
type Worker struct {
	sessions     session.Store
	vectors      memory.VectorStore
	extractor    *memory.Extractor
	consolidator *memory.Consolidator
	summarizer   *memory.Summarizer
	model        string
	messageLimit int

	kgURL      string
	httpClient *http.Client
}

// NewWorker constructs a Worker. kgURL may be empty, disabling the
// knowledge-graph sidecar POST entirely.
func NewWorker(
	sessions session.Store,
	vectors memory.VectorStore,
	extractor *memory.Extractor,
	consolidator *memory.Consolidator,
	summarizer *memory.Summarizer,
	model string,
	messageLimit int,
	kgURL string,
	httpClient *http.Client,
) *Worker {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(nil)
	}
	return &Worker{
		sessions:     sessions,
		vectors:      vectors,
		extractor:    extractor,
		consolidator: consolidator,
		summarizer:   summarizer,
		model:        model,
		messageLimit: messageLimit,
		kgURL:        kgURL,
		httpClient:   httpClient,
	}
}

// HandleExtraction runs Extractor -> Consolidator -> VectorStore writes over
// job's captured window, then advances the session's memory watermark.
// Running the same job twice is safe: the Consolidator's identity/dedup
// rules mean re-extracting the same window either reproduces the same
// writes (idempotent upsert) or, if the store already reflects them,
// reconciles to a no-op; the watermark advance is a monotonic max.
func (w *Worker) HandleExtraction(ctx context.Context, job queue.ExtractionJob) error {
	log := observability.LoggerWithTrace(ctx)

	window := make([]session.Message, len(job.Window))
	for i, m := range job.Window {
		window[i] = session.Message{Role: session.Role(m.Role), Content: m.Content}
	}

	candidates, err := w.extractor.Extract(ctx, window)
	if err != nil {
		return fmt.Errorf("lifecycle worker: extract: %w", err)
	}

	if len(candidates) > 0 {
		writes, err := w.consolidator.Reconcile(ctx, job.UserID, candidates)
		if err != nil {
			return fmt.Errorf("lifecycle worker: reconcile: %w", err)
		}
		if err := memory.ApplyWrites(ctx, w.vectors, writes); err != nil {
			return fmt.Errorf("lifecycle worker: apply writes: %w", err)
		}
	}

	if err := w.sessions.AdvanceMemoryWatermark(ctx, job.SessionID, job.TargetWatermark); err != nil {
		return fmt.Errorf("lifecycle worker: advance memory watermark: %w", err)
	}

	if len(candidates) > 0 && w.kgURL != "" {
		w.postKnowledgeGraph(ctx, job)
	}

	log.Info().Str("session_id", job.SessionID).Int("candidates", len(candidates)).
		Int("watermark", job.TargetWatermark).Msg("lifecycle worker: extraction complete")
	return nil
}

// HandleSummary regenerates job's session summary from its current summary
// plus the most recent messageLimit messages, then advances the summary
// watermark atomically with the new summary text/vector.
func (w *Worker) HandleSummary(ctx context.Context, job queue.SummaryJob) error {
	sess, err := w.sessions.Get(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("lifecycle worker: get session: %w", err)
	}

	recent, err := w.sessions.RecentMessages(ctx, job.SessionID, w.messageLimit)
	if err != nil {
		return fmt.Errorf("lifecycle worker: recent messages: %w", err)
	}

	summarized, err := w.summarizer.Summarize(ctx, sess.Summary, recent, w.model)
	if err != nil {
		return fmt.Errorf("lifecycle worker: summarize: %w", err)
	}

	if err := w.sessions.AdvanceSummaryWatermark(ctx, job.SessionID, job.TargetWatermark, summarized.Text, summarized.Vector); err != nil {
		return fmt.Errorf("lifecycle worker: advance summary watermark: %w", err)
	}
	return nil
}

// knowledgeGraphRequest is the wire shape of the optional sidecar POST.
type knowledgeGraphRequest struct {
	Input      []queue.MessageSnapshot `json:"input"`
	Metadata   knowledgeGraphMetadata  `json:"metadata"`
	TargetType string                  `json:"target_type"`
	InputType  string                  `json:"input_type"`
}

type knowledgeGraphMetadata struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// postKnowledgeGraph is a best-effort notification to the optional
// knowledge-graph sidecar; failures are logged and never propagated.
func (w *Worker) postKnowledgeGraph(ctx context.Context, job queue.ExtractionJob) {
	log := observability.LoggerWithTrace(ctx)

	body, err := json.Marshal(knowledgeGraphRequest{
		Input:      job.Window,
		Metadata:   knowledgeGraphMetadata{UserID: job.UserID, SessionID: job.SessionID},
		TargetType: "personal_memory",
		InputType:  "chat_history",
	})
	if err != nil {
		log.Warn().Err(err).Msg("lifecycle worker: failed to marshal knowledge-graph payload")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.kgURL, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("lifecycle worker: failed to build knowledge-graph request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("lifecycle worker: knowledge-graph sidecar post failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("lifecycle worker: knowledge-graph sidecar returned non-2xx")
	}
}
