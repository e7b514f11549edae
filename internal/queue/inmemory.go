package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"recalld/internal/apperr"
	"recalld/internal/observability"
)

// InMemoryQueue is a channel-backed JobQueue for tests and single-process
// deployments that do not want a Kafka dependency. It satisfies the same
// at-least-once/retry/DLQ contract as the Kafka-backed implementation.
type InMemoryQueue struct {
	envelopes chan Envelope
	workers   int

	mu  sync.Mutex
	dlq []DeadLetter
}

// DeadLetter is a job that exhausted its retries, recorded for inspection
// (tests assert on this instead of a real DLQ topic).
type DeadLetter struct {
	Envelope Envelope
	Err      string
}

// NewInMemoryQueue constructs an InMemoryQueue with the given worker pool
// size and channel buffer depth.
func NewInMemoryQueue(workers, buffer int) *InMemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &InMemoryQueue{envelopes: make(chan Envelope, buffer), workers: workers}
}

func (q *InMemoryQueue) EnqueueExtraction(ctx context.Context, job ExtractionJob) (string, error) {
	env := Envelope{ID: uuid.NewString(), Kind: KindExtraction, Extraction: &job, EnqueuedAt: time.Now().UTC()}
	return q.push(ctx, env)
}

func (q *InMemoryQueue) EnqueueSummary(ctx context.Context, job SummaryJob) (string, error) {
	env := Envelope{ID: uuid.NewString(), Kind: KindSummary, Summary: &job, EnqueuedAt: time.Now().UTC()}
	return q.push(ctx, env)
}

func (q *InMemoryQueue) push(ctx context.Context, env Envelope) (string, error) {
	select {
	case q.envelopes <- env:
		return env.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is canceled.
func (q *InMemoryQueue) Run(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func() {
			defer wg.Done()
			q.worker(ctx, handler)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *InMemoryQueue) worker(ctx context.Context, handler Handler) {
	for {
		select {
		case env, ok := <-q.envelopes:
			if !ok {
				return
			}
			q.process(ctx, handler, env)
		case <-ctx.Done():
			return
		}
	}
}

func (q *InMemoryQueue) process(ctx context.Context, handler Handler, env Envelope) {
	log := observability.LoggerWithTrace(ctx)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var err error
		switch env.Kind {
		case KindExtraction:
			err = handler.HandleExtraction(ctx, *env.Extraction)
		case KindSummary:
			err = handler.HandleSummary(ctx, *env.Summary)
		}
		if err == nil {
			return
		}
		lastErr = err
		if !errors.Is(err, apperr.ErrTransient) {
			log.Error().Err(err).Str("job_id", env.ID).Msg("queue: non-transient failure, dead-lettering without retry")
			q.mu.Lock()
			q.dlq = append(q.dlq, DeadLetter{Envelope: env, Err: err.Error()})
			q.mu.Unlock()
			return
		}
		if attempt == maxRetries {
			break
		}
		backoff := time.Duration(backoffSchedule[attempt]) * time.Second
		log.Warn().Err(err).Str("job_id", env.ID).Int("attempt", attempt+1).Dur("backoff", backoff).
			Msg("queue: transient failure, retrying after backoff")
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
	log.Error().Err(lastErr).Str("job_id", env.ID).Msg("queue: job dead-lettered after exhausting retries")
	q.mu.Lock()
	q.dlq = append(q.dlq, DeadLetter{Envelope: env, Err: lastErr.Error()})
	q.mu.Unlock()
}

// DeadLetters returns a snapshot of jobs that were dead-lettered so far.
func (q *InMemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.dlq))
	copy(out, q.dlq)
	return out
}

func (q *InMemoryQueue) Close() error {
	close(q.envelopes)
	return nil
}
