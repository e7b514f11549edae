// Package llm defines the provider-agnostic contract every chat/completion
// backend implements, plus small token-budgeting helpers used by the
// summarizer.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation passed to a Provider.
type Message struct {
	Role    Role
	Content string
}

// ToolSchema describes a JSON-schema-shaped structured output contract.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema
}

// StreamHandler receives incremental output from StreamComplete.
type StreamHandler interface {
	// OnDelta is called once per text chunk as it arrives.
	OnDelta(text string)
}

// Provider is the LLM contract: free-form completion, structured completion
// against a caller-supplied schema, and a streaming variant of free-form
// completion. Instructions (system prompt) and input (the turn
// history) are always separate parameters.
type Provider interface {
	// Complete returns the model's free-form text response.
	Complete(ctx context.Context, instructions string, messages []Message) (string, error)
	// CompleteStructured returns JSON conforming to schema.
	CompleteStructured(ctx context.Context, instructions string, messages []Message, schema ToolSchema) (json.RawMessage, error)
	// StreamComplete is like Complete but forwards chunks to handler as they
	// arrive, returning the full accumulated text once the stream ends.
	StreamComplete(ctx context.Context, instructions string, messages []Message, handler StreamHandler) (string, error)
	// Name identifies the provider for logging/metrics.
	Name() string
}
