package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"recalld/internal/apperr"
)

// memoryStore is an in-process VectorStore used by tests and by deployments
// that opt out of a real vector database.
type memoryStore struct {
	mu    sync.RWMutex
	items map[string]Memory
}

// NewInMemoryStore constructs a VectorStore backed by a guarded map.
func NewInMemoryStore() VectorStore {
	return &memoryStore{items: make(map[string]Memory)}
}

func (s *memoryStore) Insert(_ context.Context, m Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[m.ID]; ok {
		return apperr.ErrConflict
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt
	m.Vector = append([]float32(nil), m.Vector...)
	s.items[m.ID] = m
	return nil
}

func (s *memoryStore) Update(_ context.Context, id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if u.Vector != nil {
		m.Vector = append([]float32(nil), u.Vector...)
	}
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Attributes != nil {
		m.Attributes = *u.Attributes
	}
	m.UpdatedAt = time.Now().UTC()
	s.items[id] = m
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *memoryStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.items {
		if m.UserID == userID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, userID string, queryVector []float32, k int) ([]Memory, error) {
	if k <= 0 {
		k = 10
	}
	if k > MaxSearchK {
		k = MaxSearchK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scoredItems []scored
	for _, m := range s.items {
		if m.UserID != userID || m.Attributes.Status != StatusActive {
			continue
		}
		scoredItems = append(scoredItems, scored{mem: m, distance: cosineDistance(queryVector, m.Vector)})
	}
	sortByDistance(scoredItems)
	if len(scoredItems) > k {
		scoredItems = scoredItems[:k]
	}
	out := make([]Memory, len(scoredItems))
	for i, it := range scoredItems {
		out[i] = it.mem
	}
	return out, nil
}

func (s *memoryStore) GetByUser(_ context.Context, userID string, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Memory
	for _, m := range s.items {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }
