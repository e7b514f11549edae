package embedding

import (
	"context"
	"time"
)

// WithTimeout wraps e so every embed call carries its own deadline. A
// non-positive d returns e unchanged.
func WithTimeout(e Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return e
	}
	return &timeoutEmbedder{e: e, d: d}
}

type timeoutEmbedder struct {
	e Embedder
	d time.Duration
}

func (t *timeoutEmbedder) Name() string   { return t.e.Name() }
func (t *timeoutEmbedder) Dimension() int { return t.e.Dimension() }

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.e.Embed(ctx, text)
}

func (t *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.e.EmbedBatch(ctx, texts)
}
