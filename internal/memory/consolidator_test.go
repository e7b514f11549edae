package memory

import (
	"context"
	"encoding/json"
	"testing"

	"recalld/internal/embedding"
	"recalld/internal/llm"
)

func TestConsolidatorInsertsWhenNoExistingMemories(t *testing.T) {
	store := NewInMemoryStore()
	emb := embedding.NewDeterministic(16, true, 0)
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			t.Fatal("llm should not be called when there are no existing neighbors")
			return nil, nil
		},
	}
	retriever := NewRetriever(emb, store)
	c := NewConsolidator(provider, emb, retriever, 10)

	writes, err := c.Reconcile(context.Background(), "u1", []Candidate{{Content: "Name is John", Type: "personal"}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(writes) != 1 || !writes[0].Insert {
		t.Fatalf("expected a single insert, got %+v", writes)
	}
	if err := ApplyWrites(context.Background(), store, writes); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := store.GetByUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Name is John" {
		t.Fatalf("unexpected store contents: %+v", got)
	}
}

func TestConsolidatorSupersedesMarksExistingOutdated(t *testing.T) {
	store := NewInMemoryStore()
	emb := embedding.NewDeterministic(16, true, 0)
	existing := seedMemory(t, store, "u1", "Lives in Boston", StatusActive, emb)

	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			result := map[string]any{
				"actions": []map[string]any{
					{"id": existing.ID, "status": "outdated"},
					{"content": "Lives in Seattle", "type": "personal", "status": "active"},
				},
			}
			raw, _ := json.Marshal(result)
			return raw, nil
		},
	}
	retriever := NewRetriever(emb, store)
	c := NewConsolidator(provider, emb, retriever, 10)

	writes, err := c.Reconcile(context.Background(), "u1", []Candidate{{Content: "Lives in Seattle", Type: "personal"}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := ApplyWrites(context.Background(), store, writes); err != nil {
		t.Fatalf("apply: %v", err)
	}

	all, err := store.GetByUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	var activeCount, outdatedCount int
	for _, m := range all {
		if m.Attributes.Status == StatusActive {
			activeCount++
		} else {
			outdatedCount++
		}
	}
	if activeCount != 1 || outdatedCount != 1 {
		t.Fatalf("expected exactly one active and one outdated memory, got active=%d outdated=%d (%+v)", activeCount, outdatedCount, all)
	}
}

func TestConsolidatorIdenticalCandidateIsDropped(t *testing.T) {
	store := NewInMemoryStore()
	emb := embedding.NewDeterministic(16, true, 0)
	seedMemory(t, store, "u1", "Lives in Boston", StatusActive, emb)

	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"actions":[]}`), nil
		},
	}
	retriever := NewRetriever(emb, store)
	c := NewConsolidator(provider, emb, retriever, 10)

	writes, err := c.Reconcile(context.Background(), "u1", []Candidate{{Content: "Lives in Boston", Type: "personal"}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(writes) != 0 {
		t.Fatalf("expected no writes for an identical candidate, got %+v", writes)
	}
}

func TestConsolidatorIgnoresUnknownID(t *testing.T) {
	store := NewInMemoryStore()
	emb := embedding.NewDeterministic(16, true, 0)
	seedMemory(t, store, "u1", "Lives in Boston", StatusActive, emb)

	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"actions":[{"id":"does-not-exist","status":"outdated"}]}`), nil
		},
	}
	retriever := NewRetriever(emb, store)
	c := NewConsolidator(provider, emb, retriever, 10)

	writes, err := c.Reconcile(context.Background(), "u1", []Candidate{{Content: "Lives in Boston", Type: "personal"}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(writes) != 0 {
		t.Fatalf("expected unknown id action to be discarded, got %+v", writes)
	}
}
