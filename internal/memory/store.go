package memory

import "context"

// VectorStore is the sole authority on memory identity and ordering. No
// caller generates vectors for reads except via an Embedder.
type VectorStore interface {
	// Insert fails with apperr.ErrConflict if m.ID already exists.
	Insert(ctx context.Context, m Memory) error
	// Update applies a partial update, bumping UpdatedAt on success. Fails
	// with apperr.ErrNotFound if id is absent.
	Update(ctx context.Context, id string, u Update) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, userID string) error
	// Search returns up to k active memories belonging to userID, ordered by
	// ascending cosine distance to queryVector; ties break by UpdatedAt
	// descending, then ID lexicographic. 1 <= k <= 50.
	Search(ctx context.Context, userID string, queryVector []float32, k int) ([]Memory, error)
	// GetByUser returns memories for userID ordered by CreatedAt descending.
	// limit <= 0 means unbounded.
	GetByUser(ctx context.Context, userID string, limit int) ([]Memory, error)
	Close() error
}

// MaxSearchK is the upper bound on Search's k, per the VectorStore contract.
const MaxSearchK = 50
