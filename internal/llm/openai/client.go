// Package openai adapts github.com/openai/openai-go/v2 to the llm.Provider
// contract, using the Chat Completions API's native JSON-schema response
// format for CompleteStructured.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"recalld/internal/apperr"
	"recalld/internal/config"
	"recalld/internal/llm"
)

// Client implements llm.Provider against the OpenAI Chat Completions API.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client from config, optionally reusing httpClient.
func New(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: OPENAI_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model}, nil
}

func (c *Client) Name() string { return "openai" }

func toOpenAIMessages(instructions string, messages []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if instructions != "" {
		out = append(out, sdk.SystemMessage(instructions))
	}
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (c *Client) Complete(ctx context.Context, instructions string, messages []llm.Message) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(instructions, messages),
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai complete: %v", apperr.ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", apperr.ErrLLMParse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) CompleteStructured(ctx context.Context, instructions string, messages []llm.Message, schema llm.ToolSchema) (json.RawMessage, error) {
	var schemaMap map[string]any
	if err := json.Unmarshal(schema.Parameters, &schemaMap); err != nil {
		return nil, fmt.Errorf("%w: invalid schema: %v", apperr.ErrLLMParse, err)
	}
	resp, err := c.sdk.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(instructions, messages),
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schema.Name,
					Schema: schemaMap,
					Strict: param.NewOpt(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai structured complete: %v", apperr.ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", apperr.ErrLLMParse)
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

func (c *Client) StreamComplete(ctx context.Context, instructions string, messages []llm.Message, handler llm.StreamHandler) (string, error) {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(instructions, messages),
	})
	var text string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text += delta
		if handler != nil {
			handler.OnDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return text, fmt.Errorf("%w: openai stream: %v", apperr.ErrTransient, err)
	}
	return text, nil
}
