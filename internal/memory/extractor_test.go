package memory

import (
	"context"
	"encoding/json"
	"testing"

	"recalld/internal/llm"
	"recalld/internal/session"
)

func TestExtractorParsesMemories(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"memories":[{"content":"Name is John","type":"personal"}]}`), nil
		},
	}
	extractor := NewExtractor(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "My name is John."},
		{Role: session.RoleAssistant, Content: "Nice to meet you, John."},
	}
	got, err := extractor.Extract(context.Background(), window)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Name is John" || got[0].Type != "personal" {
		t.Fatalf("unexpected extraction: %+v", got)
	}
}

func TestExtractorEmptyForSmallTalk(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"memories":[]}`), nil
		},
	}
	extractor := NewExtractor(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "Hey!"},
		{Role: session.RoleAssistant, Content: "Hi, how can I help?"},
	}
	got, err := extractor.Extract(context.Background(), window)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no memories for small talk, got %+v", got)
	}
}

func TestExtractorTreatsInvalidJSONAsEmpty(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`not json`), nil
		},
	}
	extractor := NewExtractor(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "x"},
		{Role: session.RoleAssistant, Content: "y"},
	}
	got, err := extractor.Extract(context.Background(), window)
	if err != nil {
		t.Fatalf("expected no error even on invalid json, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil extraction on parse failure, got %+v", got)
	}
}

func TestExtractorIgnoresSystemTurns(t *testing.T) {
	var seen []llm.Message
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"memories":[]}`), nil
		},
	}
	extractor := NewExtractor(provider)
	window := []session.Message{
		{Role: session.RoleSystem, Content: "ignore me"},
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}
	seen = toLLMMessages(window)
	if len(seen) != 2 {
		t.Fatalf("expected system turns excluded, got %d messages", len(seen))
	}
	if _, err := extractor.Extract(context.Background(), window); err != nil {
		t.Fatalf("extract: %v", err)
	}
}
