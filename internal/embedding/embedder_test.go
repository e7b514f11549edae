package embedding

import (
	"context"
	"math"
	"testing"

	"recalld/internal/config"
)

func TestDeterministicEmbedderIsDeterministic(t *testing.T) {
	e := NewDeterministic(32, true, 0)
	a, err := e.Embed(context.Background(), "the user likes dark roast coffee")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "the user likes dark roast coffee")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("expected dimension 32, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings of identical text diverged at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestDeterministicEmbedderDiffersOnContent(t *testing.T) {
	e := NewDeterministic(32, true, 0)
	a, _ := e.Embed(context.Background(), "the user likes dark roast coffee")
	b, _ := e.Embed(context.Background(), "the user dislikes seafood")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different text to produce different embeddings")
	}
}

func TestDeterministicEmbedderNormalizes(t *testing.T) {
	e := NewDeterministic(16, true, 0)
	v, err := e.Embed(context.Background(), "some reasonably long sentence of text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("expected unit-norm vector, got norm %f", norm)
	}
}

func TestDeterministicEmbedderBatchMatchesSingle(t *testing.T) {
	e := NewDeterministic(16, true, 7)
	texts := []string{"alpha beta", "gamma delta", "epsilon"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		for j := range single {
			if single[j] != batch[i][j] {
				t.Fatalf("batch[%d] diverges from single embed at index %d", i, j)
			}
		}
	}
}

func TestDeterministicEmbedderEmptyText(t *testing.T) {
	e := NewDeterministic(8, true, 0)
	v, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("embed empty text: %v", err)
	}
	if len(v) != 8 {
		t.Fatalf("expected dimension 8 even for empty input, got %d", len(v))
	}
}

func TestNewSelectsDeterministicBackend(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Backend: "deterministic", Dimensions: 16}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.Dimension() != 16 {
		t.Fatalf("expected dimension 16, got %d", e.Dimension())
	}
	if e.Name() != "deterministic" {
		t.Fatalf("expected deterministic backend, got %q", e.Name())
	}
}

func TestNewSelectsHTTPBackendByDefault(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Backend: "http", Model: "text-embedding-3", Dimensions: 1536}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.Dimension() != 1536 {
		t.Fatalf("expected dimension 1536, got %d", e.Dimension())
	}
}
