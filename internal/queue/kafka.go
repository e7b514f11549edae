package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"recalld/internal/apperr"
	"recalld/internal/observability"
)

// KafkaQueue is a Kafka-backed JobQueue: producer writes ExtractionJob/
// SummaryJob envelopes onto a single topic, and a bounded goroutine pool
// consumes them, retrying in place under the job's own context and
// republishing to "<topic>.dlq" on exhaustion before committing the
// offset — the offset is always committed, since the DLQ is the record of
// failure, not the uncommitted offset.
type KafkaQueue struct {
	writer  *kafkago.Writer
	brokers []string
	topic   string
	groupID string
	workers int
}

// NewKafkaQueue constructs a KafkaQueue against brokers, publishing to and
// consuming from topic under the given consumer group.
func NewKafkaQueue(brokers []string, topic, groupID string, workers int) *KafkaQueue {
	if workers <= 0 {
		workers = 4
	}
	return &KafkaQueue{
		writer:  &kafkago.Writer{Addr: kafkago.TCP(brokers...), Topic: topic, Balancer: &kafkago.LeastBytes{}},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		workers: workers,
	}
}

func (q *KafkaQueue) EnqueueExtraction(ctx context.Context, job ExtractionJob) (string, error) {
	env := Envelope{ID: uuid.NewString(), Kind: KindExtraction, Extraction: &job, EnqueuedAt: time.Now().UTC()}
	return q.publish(ctx, env)
}

func (q *KafkaQueue) EnqueueSummary(ctx context.Context, job SummaryJob) (string, error) {
	env := Envelope{ID: uuid.NewString(), Kind: KindSummary, Summary: &job, EnqueuedAt: time.Now().UTC()}
	return q.publish(ctx, env)
}

func (q *KafkaQueue) publish(ctx context.Context, env Envelope) (string, error) {
	payload, err := env.Marshal()
	if err != nil {
		return "", fmt.Errorf("queue: marshal envelope: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(env.ID), Value: payload}); err != nil {
		return "", fmt.Errorf("queue: publish: %w", err)
	}
	return env.ID, nil
}

func (q *KafkaQueue) dlqTopic() string {
	return q.topic + ".dlq"
}

// Run starts the consumer worker pool and blocks until ctx is canceled.
func (q *KafkaQueue) Run(ctx context.Context, handler Handler) error {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  q.brokers,
		GroupID:  q.groupID,
		Topic:    q.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	jobs := make(chan kafkago.Message, q.workers*4)
	log := observability.LoggerWithTrace(ctx)

	var wg sync.WaitGroup
	wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				q.handle(ctx, handler, msg)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Int("worker", workerID).Msg("queue: commit failed")
				}
			}
		}(i)
	}

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			break
		}
		select {
		case jobs <- msg:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	wg.Wait()
	return ctx.Err()
}

func (q *KafkaQueue) handle(ctx context.Context, handler Handler, msg kafkago.Message) {
	log := observability.LoggerWithTrace(ctx)
	env, err := Unmarshal(msg.Value)
	if err != nil {
		log.Error().Err(err).Msg("queue: malformed envelope, dead-lettering without retry")
		q.publishDLQ(ctx, env, fmt.Sprintf("malformed envelope: %v", err))
		return
	}
	if (env.Kind == KindExtraction && env.Extraction == nil) || (env.Kind == KindSummary && env.Summary == nil) {
		log.Error().Str("job_id", env.ID).Msg("queue: envelope missing payload for its kind, dead-lettering")
		q.publishDLQ(ctx, env, "envelope missing payload for kind "+string(env.Kind))
		return
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		switch env.Kind {
		case KindExtraction:
			lastErr = handler.HandleExtraction(ctx, *env.Extraction)
		case KindSummary:
			lastErr = handler.HandleSummary(ctx, *env.Summary)
		default:
			lastErr = fmt.Errorf("queue: unknown job kind %q", env.Kind)
		}
		if lastErr == nil {
			return
		}
		if !errors.Is(lastErr, apperr.ErrTransient) {
			log.Error().Err(lastErr).Str("job_id", env.ID).Msg("queue: non-transient failure, dead-lettering without retry")
			q.publishDLQ(ctx, env, lastErr.Error())
			return
		}
		if attempt == maxRetries {
			break
		}
		backoff := time.Duration(backoffSchedule[attempt]) * time.Second
		log.Warn().Err(lastErr).Str("job_id", env.ID).Int("attempt", attempt+1).Dur("backoff", backoff).
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
	q.publishDLQ(ctx, env, lastErr.Error())
}

func (q *KafkaQueue) publishDLQ(ctx context.Context, env Envelope, reason string) {
	log := observability.LoggerWithTrace(ctx)
	payload, err := json.Marshal(struct {
		Envelope Envelope `json:"envelope"`
		Error    string   `json:"error"`
	}{Envelope: env, Error: reason})
	if err != nil {
		log.Error().Err(err).Msg("queue: failed to marshal DLQ payload")
		return
	}
	dlqWriter := &kafkago.Writer{Addr: kafkago.TCP(q.brokers...), Topic: q.dlqTopic(), Balancer: &kafkago.LeastBytes{}}
	defer dlqWriter.Close()
	if err := dlqWriter.WriteMessages(context.Background(), kafkago.Message{Key: []byte(env.ID), Value: payload}); err != nil {
		log.Error().Err(err).Str("job_id", env.ID).Msg("queue: failed to publish DLQ message")
	}
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}
