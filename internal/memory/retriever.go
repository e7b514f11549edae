package memory

import (
	"context"
	"fmt"

	"recalld/internal/apperr"
	"recalld/internal/embedding"
)

// Retriever answers semantic search over a user's active memories. It never
// re-ranks or re-embeds the store's response: the VectorStore's ordering is
// authoritative.
type Retriever struct {
	embedder embedding.Embedder
	store    VectorStore
}

// NewRetriever constructs a Retriever over an Embedder and a VectorStore.
func NewRetriever(embedder embedding.Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds query, asks the store for the top k matches for userID, and
// filters to active memories.
func (r *Retriever) Search(ctx context.Context, query, userID string, k int) ([]Memory, error) {
	if k < 1 || k > MaxSearchK {
		return nil, fmt.Errorf("%w: k must be in [1,%d], got %d", apperr.ErrValidation, MaxSearchK, k)
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", apperr.ErrTransient, err)
	}
	results, err := r.store.Search(ctx, userID, vector, k)
	if err != nil {
		return nil, err
	}
	active := make([]Memory, 0, len(results))
	for _, m := range results {
		if m.Attributes.Status == StatusActive {
			active = append(active, m)
		}
	}
	return active, nil
}
