// Package google adapts google.golang.org/genai to the llm.Provider
// contract, using the Gemini API's native ResponseSchema for
// CompleteStructured.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"recalld/internal/apperr"
	"recalld/internal/config"
	"recalld/internal/llm"
)

// Client implements llm.Provider against the Gemini API.
type Client struct {
	sdk   *genai.Client
	model string
}

// New constructs a Client from config. httpClient is accepted for interface
// symmetry with the other providers; the genai SDK manages its own
// transport.
func New(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: GOOGLE_API_KEY is required")
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Client{sdk: client, model: cfg.Model}, nil
}

func (c *Client) Name() string { return "google" }

func toGenaiContents(messages []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	return out
}

func (c *Client) Complete(ctx context.Context, instructions string, messages []llm.Message) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instructions)}},
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, toGenaiContents(messages), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: google complete: %v", apperr.ErrTransient, err)
	}
	return resp.Text(), nil
}

func (c *Client) CompleteStructured(ctx context.Context, instructions string, messages []llm.Message, schema llm.ToolSchema) (json.RawMessage, error) {
	var genaiSchema genai.Schema
	if err := json.Unmarshal(schema.Parameters, &genaiSchema); err != nil {
		return nil, fmt.Errorf("%w: invalid schema: %v", apperr.ErrLLMParse, err)
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instructions)}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    &genaiSchema,
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, toGenaiContents(messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: google structured complete: %v", apperr.ErrTransient, err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: google returned empty structured response", apperr.ErrLLMParse)
	}
	return json.RawMessage(text), nil
}

func (c *Client) StreamComplete(ctx context.Context, instructions string, messages []llm.Message, handler llm.StreamHandler) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instructions)}},
	}
	var text string
	for chunk, err := range c.sdk.Models.GenerateContentStream(ctx, c.model, toGenaiContents(messages), cfg) {
		if err != nil {
			return text, fmt.Errorf("%w: google stream: %v", apperr.ErrTransient, err)
		}
		delta := chunk.Text()
		if delta == "" {
			continue
		}
		text += delta
		if handler != nil {
			handler.OnDelta(delta)
		}
	}
	return text, nil
}
