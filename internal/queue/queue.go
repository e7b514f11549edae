package queue

import "context"

// Handler processes the two job kinds this deployment ever dispatches.
// Implementations must be idempotent: running the same ExtractionJob twice
// must leave the store in the same state, and the same for SummaryJob.
type Handler interface {
	HandleExtraction(ctx context.Context, job ExtractionJob) error
	HandleSummary(ctx context.Context, job SummaryJob) error
}

// JobQueue is the at-least-once background dispatch contract. Enqueue is
// called from the request path (LifecycleCoordinator.OnTurn) and must
// return quickly; Run is called once at process start from a worker
// process or goroutine and blocks, draining jobs through handler until ctx
// is canceled.
type JobQueue interface {
	EnqueueExtraction(ctx context.Context, job ExtractionJob) (string, error)
	EnqueueSummary(ctx context.Context, job SummaryJob) (string, error)
	// Run starts the worker pool and blocks until ctx is canceled,
	// dispatching envelopes to handler.
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// backoffSchedule is the retry-with-backoff shape shared by every JobQueue
// implementation: initial 60s, doubling, capped at 3 retries.
var backoffSchedule = []int{60, 120, 240} // seconds

const maxRetries = 3
