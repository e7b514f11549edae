package llm

import (
	"context"
	"encoding/json"
	"time"
)

// WithTimeout wraps p so every outbound call carries its own deadline in
// addition to whatever deadline the caller's context already has. A
// non-positive d returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{p: p, d: d}
}

type timeoutProvider struct {
	p Provider
	d time.Duration
}

func (t *timeoutProvider) Name() string { return t.p.Name() }

func (t *timeoutProvider) Complete(ctx context.Context, instructions string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.p.Complete(ctx, instructions, messages)
}

func (t *timeoutProvider) CompleteStructured(ctx context.Context, instructions string, messages []Message, schema ToolSchema) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.p.CompleteStructured(ctx, instructions, messages, schema)
}

func (t *timeoutProvider) StreamComplete(ctx context.Context, instructions string, messages []Message, handler StreamHandler) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.p.StreamComplete(ctx, instructions, messages, handler)
}
