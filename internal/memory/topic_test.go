package memory

import (
	"context"
	"encoding/json"
	"testing"

	"recalld/internal/llm"
	"recalld/internal/session"
)

func TestTopicDetectorTrivialFalseForShortWindow(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			t.Fatal("should not call the llm for a window shorter than 2")
			return nil, nil
		},
	}
	d := NewTopicDetector(provider)
	if d.Detect(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}) {
		t.Fatal("expected false for single-message window")
	}
}

func TestTopicDetectorReturnsLLMVerdict(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`{"changed":true}`), nil
		},
	}
	d := NewTopicDetector(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "Let's talk about food"},
		{Role: session.RoleAssistant, Content: "Sure"},
		{Role: session.RoleUser, Content: "Actually, how do I debug a goroutine leak?"},
		{Role: session.RoleAssistant, Content: "Let's look at pprof"},
	}
	if !d.Detect(context.Background(), window) {
		t.Fatal("expected topic change verdict true")
	}
}

func TestTopicDetectorFailsClosedOnError(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return nil, context.DeadlineExceeded
		},
	}
	d := NewTopicDetector(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "a"},
		{Role: session.RoleAssistant, Content: "b"},
	}
	if d.Detect(context.Background(), window) {
		t.Fatal("expected fail-closed false on llm error")
	}
}

func TestTopicDetectorFailsClosedOnInvalidJSON(t *testing.T) {
	provider := &fakeProvider{
		completeStructuredFn: func(schema llm.ToolSchema) (json.RawMessage, error) {
			return json.RawMessage(`garbage`), nil
		},
	}
	d := NewTopicDetector(provider)
	window := []session.Message{
		{Role: session.RoleUser, Content: "a"},
		{Role: session.RoleAssistant, Content: "b"},
	}
	if d.Detect(context.Background(), window) {
		t.Fatal("expected fail-closed false on invalid json")
	}
}
