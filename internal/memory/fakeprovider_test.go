package memory

import (
	"context"
	"encoding/json"

	"recalld/internal/llm"
)

// fakeProvider is a scripted llm.Provider for unit tests: completeFn and
// completeStructuredFn, when set, answer every call of their method; otherwise
// the defaults are used.
type fakeProvider struct {
	completeStructuredFn func(schema llm.ToolSchema) (json.RawMessage, error)
	completeFn           func(instructions string, messages []llm.Message) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, instructions string, messages []llm.Message) (string, error) {
	if f.completeFn != nil {
		return f.completeFn(instructions, messages)
	}
	return "", nil
}

func (f *fakeProvider) CompleteStructured(_ context.Context, _ string, _ []llm.Message, schema llm.ToolSchema) (json.RawMessage, error) {
	if f.completeStructuredFn != nil {
		return f.completeStructuredFn(schema)
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeProvider) StreamComplete(_ context.Context, _ string, _ []llm.Message, handler llm.StreamHandler) (string, error) {
	if handler != nil {
		handler.OnDelta("fake")
	}
	return "fake", nil
}
