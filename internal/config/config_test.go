package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if len(kv) > 8 && kv[:8] == "RECALLD_" {
					os.Unsetenv(kv[:i])
				}
				break
			}
		}
	}
}

func TestLoadRequiresLLMProvider(t *testing.T) {
	clearEnv(t)
	os.Setenv("RECALLD_LLM_MODEL", "claude-opus")
	os.Setenv("RECALLD_EMBEDDING_DIMENSIONS", "1536")
	os.Setenv("RECALLD_EMBEDDING_MODEL", "text-embedding-3")
	os.Setenv("RECALLD_DATABASE_URL", "postgres://localhost/recalld")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RECALLD_LLM_PROVIDER is unset")
	}

	os.Setenv("RECALLD_LLM_PROVIDER", "anthropic")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.Retrieval.MemorySearchLimit != 10 {
		t.Errorf("default MemorySearchLimit = %d, want 10", cfg.Retrieval.MemorySearchLimit)
	}
	if cfg.Retrieval.MessageLimit != 20 {
		t.Errorf("default MessageLimit = %d, want 20", cfg.Retrieval.MessageLimit)
	}
}

func TestLoadRejectsOutOfRangeSearchLimit(t *testing.T) {
	clearEnv(t)
	os.Setenv("RECALLD_LLM_PROVIDER", "openai")
	os.Setenv("RECALLD_LLM_MODEL", "gpt-5")
	os.Setenv("RECALLD_EMBEDDING_DIMENSIONS", "1536")
	os.Setenv("RECALLD_EMBEDDING_MODEL", "text-embedding-3")
	os.Setenv("RECALLD_DATABASE_URL", "postgres://localhost/recalld")
	os.Setenv("RECALLD_MEMORY_SEARCH_LIMIT", "51")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for RECALLD_MEMORY_SEARCH_LIMIT=51")
	}
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("RECALLD_LLM_PROVIDER", "anthropic")
	os.Setenv("RECALLD_LLM_MODEL", "claude-sonnet-4-5")
	os.Setenv("RECALLD_EMBEDDING_DIMENSIONS", "1536")
	os.Setenv("RECALLD_EMBEDDING_MODEL", "text-embedding-3")
	os.Setenv("RECALLD_DATABASE_URL", "postgres://localhost/recalld")
	defer clearEnv(t)

	path := t.TempDir() + "/overrides.yaml"
	if err := os.WriteFile(path, []byte("kg_sidecar_url: http://kg:9000/save\nqueue_topic: memory.jobs.staging\n"), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}
	os.Setenv("RECALLD_OVERRIDES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KGSidecar != "http://kg:9000/save" {
		t.Errorf("KGSidecar = %q, want override applied", cfg.KGSidecar)
	}
	if cfg.Queue.Topic != "memory.jobs.staging" {
		t.Errorf("Queue.Topic = %q, want memory.jobs.staging", cfg.Queue.Topic)
	}
}

func TestLoadMissingOverridesFileIsIgnored(t *testing.T) {
	clearEnv(t)
	os.Setenv("RECALLD_LLM_PROVIDER", "anthropic")
	os.Setenv("RECALLD_LLM_MODEL", "claude-sonnet-4-5")
	os.Setenv("RECALLD_EMBEDDING_DIMENSIONS", "1536")
	os.Setenv("RECALLD_EMBEDDING_MODEL", "text-embedding-3")
	os.Setenv("RECALLD_DATABASE_URL", "postgres://localhost/recalld")
	os.Setenv("RECALLD_OVERRIDES_FILE", t.TempDir()+"/does-not-exist.yaml")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error for missing overrides file: %v", err)
	}
	if cfg.Queue.Topic != "memory.jobs" {
		t.Errorf("Queue.Topic = %q, want default memory.jobs", cfg.Queue.Topic)
	}
}

func TestLoadParsesKafkaBrokers(t *testing.T) {
	clearEnv(t)
	os.Setenv("RECALLD_LLM_PROVIDER", "google")
	os.Setenv("RECALLD_LLM_MODEL", "gemini-3-pro")
	os.Setenv("RECALLD_EMBEDDING_DIMENSIONS", "768")
	os.Setenv("RECALLD_EMBEDDING_MODEL", "text-embedding-004")
	os.Setenv("RECALLD_DATABASE_URL", "postgres://localhost/recalld")
	os.Setenv("RECALLD_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Queue.Brokers) != 2 || cfg.Queue.Brokers[0] != "broker-1:9092" || cfg.Queue.Brokers[1] != "broker-2:9092" {
		t.Errorf("Brokers = %v, want [broker-1:9092 broker-2:9092]", cfg.Queue.Brokers)
	}
}
