// Package config loads recalld's process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the single process configuration. Every field is populated
// by Load from an environment variable; the only file-based input is the
// optional RECALLD_OVERRIDES_FILE overlay for a handful of deployment knobs.
type Config struct {
	LLM            LLMConfig
	Embedding      EmbeddingConfig
	Vector         VectorConfig
	Database       DatabaseConfig
	Queue          QueueConfig
	Retrieval      RetrievalConfig
	Timeouts       TimeoutConfig
	KGSidecar      string
	KGSidecarToken string
	Obs            ObsConfig
	HTTPAddr       string
}

type LLMConfig struct {
	Provider string // anthropic | openai | google
	Model    string
	APIKey   string
}

type EmbeddingConfig struct {
	Backend    string // http | deterministic
	Model      string
	Dimensions int
	BaseURL    string
	Path       string
	APIKey     string
	APIHeader  string
}

type VectorConfig struct {
	Backend string // postgres | qdrant
	DSN     string // qdrant DSN; empty when backend=postgres
	Metric  string // cosine | l2 | ip
}

type DatabaseConfig struct {
	URL string
}

type QueueConfig struct {
	Backend  string // kafka | inmemory
	Brokers  []string
	Topic    string
	RedisURL string
}

type RetrievalConfig struct {
	MemorySearchLimit int
	MessageLimit      int
	SummaryThreshold  int
}

type TimeoutConfig struct {
	LLMSeconds   int
	StoreSeconds int
}

// ObsConfig controls logging and OpenTelemetry bootstrap.
type ObsConfig struct {
	LogLevel       string
	LogPath        string
	OTLP           string
	OTLPToken      string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load reads configuration from the environment (optionally overlaid by a
// local .env via godotenv) and validates the required fields.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LLM: LLMConfig{
			Provider: envOr("RECALLD_LLM_PROVIDER", ""),
			Model:    envOr("RECALLD_LLM_MODEL", ""),
		},
		Embedding: EmbeddingConfig{
			Backend:    envOr("RECALLD_EMBEDDING_BACKEND", "http"),
			Model:      envOr("RECALLD_EMBEDDING_MODEL", ""),
			Dimensions: envIntOr("RECALLD_EMBEDDING_DIMENSIONS", 0),
			BaseURL:    envOr("RECALLD_EMBEDDING_BASE_URL", ""),
			Path:       envOr("RECALLD_EMBEDDING_PATH", "/v1/embeddings"),
			APIKey:     envOr("RECALLD_EMBEDDING_API_KEY", ""),
			APIHeader:  envOr("RECALLD_EMBEDDING_API_HEADER", "Authorization"),
		},
		Vector: VectorConfig{
			Backend: envOr("RECALLD_VECTOR_BACKEND", "postgres"),
			DSN:     envOr("RECALLD_VECTOR_DSN", ""),
			Metric:  envOr("RECALLD_VECTOR_METRIC", "cosine"),
		},
		Database: DatabaseConfig{
			URL: envOr("RECALLD_DATABASE_URL", ""),
		},
		Queue: QueueConfig{
			Backend:  envOr("RECALLD_QUEUE_BACKEND", "inmemory"),
			Topic:    envOr("RECALLD_QUEUE_TOPIC", "memory.jobs"),
			RedisURL: envOr("RECALLD_REDIS_URL", ""),
		},
		Retrieval: RetrievalConfig{
			MemorySearchLimit: envIntOr("RECALLD_MEMORY_SEARCH_LIMIT", 10),
			MessageLimit:      envIntOr("RECALLD_MESSAGE_LIMIT", 20),
			SummaryThreshold:  envIntOr("RECALLD_SUMMARY_THRESHOLD", 10),
		},
		Timeouts: TimeoutConfig{
			LLMSeconds:   envIntOr("RECALLD_LLM_TIMEOUT_SECONDS", 30),
			StoreSeconds: envIntOr("RECALLD_STORE_TIMEOUT_SECONDS", 10),
		},
		KGSidecar:      envOr("RECALLD_KG_SIDECAR_URL", ""),
		KGSidecarToken: envOr("RECALLD_KG_SIDECAR_TOKEN", ""),
		Obs: ObsConfig{
			LogLevel:       envOr("RECALLD_LOG_LEVEL", "info"),
			LogPath:        envOr("RECALLD_LOG_PATH", ""),
			OTLP:           envOr("RECALLD_OTLP_ENDPOINT", ""),
			OTLPToken:      envOr("RECALLD_OTLP_TOKEN", ""),
			ServiceName:    envOr("RECALLD_SERVICE_NAME", "recalld"),
			ServiceVersion: envOr("RECALLD_SERVICE_VERSION", "dev"),
			Environment:    envOr("RECALLD_ENVIRONMENT", "development"),
		},
		HTTPAddr: envOr("RECALLD_HTTP_ADDR", ":8080"),
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		cfg.LLM.APIKey = envOr("RECALLD_LLM_API_KEY", envOr("ANTHROPIC_API_KEY", ""))
	case "openai":
		cfg.LLM.APIKey = envOr("RECALLD_LLM_API_KEY", envOr("OPENAI_API_KEY", ""))
	case "google":
		cfg.LLM.APIKey = envOr("RECALLD_LLM_API_KEY", envOr("GOOGLE_API_KEY", ""))
	}

	if brokers := envOr("RECALLD_KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Queue.Brokers = append(cfg.Queue.Brokers, b)
			}
		}
	}

	if path := envOr("RECALLD_OVERRIDES_FILE", ""); path != "" {
		overrides, err := loadOverrides(path)
		if err != nil {
			return Config{}, err
		}
		cfg.applyOverrides(overrides)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("config: RECALLD_LLM_PROVIDER must be one of anthropic|openai|google, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: RECALLD_LLM_MODEL is required")
	}
	if c.Embedding.Backend == "http" && c.Embedding.Model == "" {
		return fmt.Errorf("config: RECALLD_EMBEDDING_MODEL is required unless RECALLD_EMBEDDING_BACKEND=deterministic")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: RECALLD_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config: RECALLD_DATABASE_URL is required")
	}
	if c.Vector.Backend == "qdrant" && c.Vector.DSN == "" {
		return fmt.Errorf("config: RECALLD_VECTOR_DSN is required when RECALLD_VECTOR_BACKEND=qdrant")
	}
	if c.Retrieval.MemorySearchLimit <= 0 || c.Retrieval.MemorySearchLimit > 50 {
		return fmt.Errorf("config: RECALLD_MEMORY_SEARCH_LIMIT must be in [1,50]")
	}
	return nil
}
