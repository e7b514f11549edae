// Command recalld runs the persistent conversational memory engine: the
// chat HTTP surface, the lifecycle worker pool, and their shared
// Postgres/Qdrant/Kafka-backed dependencies, all wired here by constructor
// injection rather than module-level singletons.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"recalld/internal/chatservice"
	"recalld/internal/config"
	"recalld/internal/embedding"
	"recalld/internal/httpapi"
	"recalld/internal/lifecycle"
	"recalld/internal/llm"
	"recalld/internal/llm/providers"
	"recalld/internal/memory"
	"recalld/internal/observability"
	"recalld/internal/queue"
	"recalld/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("recalld: fatal startup error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer shutdownOTel(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := observability.NewHTTPClient(nil)

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	sessions, err := session.NewPostgresStore(ctx, pool)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer sessions.Close()

	var vectors memory.VectorStore
	switch cfg.Vector.Backend {
	case "qdrant":
		vectors, err = memory.NewQdrantStore(cfg.Vector.DSN, "memories", cfg.Embedding.Dimensions, cfg.Vector.Metric)
	default:
		vectors, err = memory.NewPostgresStore(ctx, pool, cfg.Embedding.Dimensions, cfg.Vector.Metric)
	}
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	defer vectors.Close()
	vectors = memory.WithStoreTimeout(vectors, time.Duration(cfg.Timeouts.StoreSeconds)*time.Second)

	embedder, err := embedding.New(cfg.Embedding, httpClient)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	embedder = embedding.WithTimeout(embedder, time.Duration(cfg.Timeouts.LLMSeconds)*time.Second)

	var provider llm.Provider
	provider, err = providers.Build(cfg.LLM, httpClient)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}
	provider = llm.WithTimeout(provider, time.Duration(cfg.Timeouts.LLMSeconds)*time.Second)

	jobQueue, dedupe, err := buildQueue(cfg.Queue)
	if err != nil {
		return fmt.Errorf("init job queue: %w", err)
	}
	defer jobQueue.Close()

	retriever := memory.NewRetriever(embedder, vectors)
	extractor := memory.NewExtractor(provider)
	consolidator := memory.NewConsolidator(provider, embedder, retriever, cfg.Retrieval.MemorySearchLimit)
	summarizer := memory.NewSummarizer(provider, embedder)
	topicDetector := memory.NewTopicDetector(provider)

	coordinator := lifecycle.NewCoordinator(sessions, topicDetector, jobQueue, dedupe, cfg.Retrieval.SummaryThreshold)
	kgClient := httpClient
	if cfg.KGSidecarToken != "" {
		kgClient = observability.WithHeaders(httpClient, map[string]string{"Authorization": "Bearer " + cfg.KGSidecarToken})
	}
	worker := lifecycle.NewWorker(sessions, vectors, extractor, consolidator, summarizer, cfg.LLM.Model, cfg.Retrieval.MessageLimit, cfg.KGSidecar, kgClient)

	chat := chatservice.NewService(sessions, retriever, provider, coordinator, cfg.Retrieval.MemorySearchLimit, cfg.Retrieval.MessageLimit)

	health := &healthChecker{pool: pool, embedder: embedder}
	server := httpapi.NewServer(chat, sessions, vectors, health)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("recalld: http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Msg("recalld: lifecycle worker pool starting")
		if err := jobQueue.Run(ctx, worker); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("job queue: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("recalld: component failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildQueue constructs the JobQueue and DedupeStore named by cfg.Backend.
func buildQueue(cfg config.QueueConfig) (queue.JobQueue, queue.DedupeStore, error) {
	var dedupe queue.DedupeStore = queue.NoopDedupeStore{}
	if cfg.RedisURL != "" {
		rd, err := queue.NewRedisDedupeStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis dedupe store: %w", err)
		}
		dedupe = rd
	}

	switch cfg.Backend {
	case "kafka":
		if len(cfg.Brokers) == 0 {
			return nil, nil, fmt.Errorf("RECALLD_KAFKA_BROKERS is required when RECALLD_QUEUE_BACKEND=kafka")
		}
		return queue.NewKafkaQueue(cfg.Brokers, cfg.Topic, "recalld-lifecycle", 8), dedupe, nil
	default:
		return queue.NewInMemoryQueue(4, 256), dedupe, nil
	}
}

// healthChecker reports Postgres and embedder liveness for GET /health.
type healthChecker struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
}

func (h *healthChecker) CheckHealth(ctx context.Context) map[string]string {
	status := map[string]string{"status": "ok"}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.pool.Ping(pingCtx); err != nil {
		status["database"] = "error: " + err.Error()
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	if err := embedding.CheckReachability(ctx, h.embedder); err != nil {
		status["embedder"] = "error: " + err.Error()
		status["status"] = "degraded"
	} else {
		status["embedder"] = "ok"
	}

	return status
}
