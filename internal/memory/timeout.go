package memory

import (
	"context"
	"time"
)

// WithStoreTimeout wraps s so every store call carries its own deadline. A
// non-positive d returns s unchanged.
func WithStoreTimeout(s VectorStore, d time.Duration) VectorStore {
	if d <= 0 {
		return s
	}
	return &timeoutStore{s: s, d: d}
}

type timeoutStore struct {
	s VectorStore
	d time.Duration
}

func (t *timeoutStore) Insert(ctx context.Context, m Memory) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Insert(ctx, m)
}

func (t *timeoutStore) Update(ctx context.Context, id string, u Update) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Update(ctx, id, u)
}

func (t *timeoutStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Delete(ctx, id)
}

func (t *timeoutStore) DeleteAll(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.DeleteAll(ctx, userID)
}

func (t *timeoutStore) Search(ctx context.Context, userID string, queryVector []float32, k int) ([]Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Search(ctx, userID, queryVector, k)
}

func (t *timeoutStore) GetByUser(ctx context.Context, userID string, limit int) ([]Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.GetByUser(ctx, userID, limit)
}

func (t *timeoutStore) Close() error { return t.s.Close() }
