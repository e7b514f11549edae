// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// llm.Provider contract. Anthropic has no native JSON-schema response
// format, so CompleteStructured forces the model to answer via a single
// required tool call whose input schema is the caller's schema.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"recalld/internal/apperr"
	"recalld/internal/config"
	"recalld/internal/llm"
)

const defaultMaxTokens = 4096

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client from config, optionally reusing httpClient for the
// underlying transport.
func New(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model}, nil
}

func (c *Client) Name() string { return "anthropic" }

func toAnthropicMessages(messages []llm.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func (c *Client) Complete(ctx context.Context, instructions string, messages []llm.Message) (string, error) {
	resp, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: instructions}},
		Messages:  toAnthropicMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("%w: anthropic complete: %v", apperr.ErrTransient, err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *Client) CompleteStructured(ctx context.Context, instructions string, messages []llm.Message, schema llm.ToolSchema) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(schema.Parameters, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid schema: %v", apperr.ErrLLMParse, err)
	}
	tool := sdk.ToolParam{
		Name:        schema.Name,
		Description: sdk.String(schema.Description),
		InputSchema: sdk.ToolInputSchemaParam{
			Properties: params["properties"],
		},
	}
	resp, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: instructions}},
		Messages:  toAnthropicMessages(messages),
		Tools:     []sdk.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: schema.Name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic structured complete: %v", apperr.ErrTransient, err)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			raw, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("%w: marshal tool input: %v", apperr.ErrLLMParse, err)
			}
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: anthropic returned no tool_use block", apperr.ErrLLMParse)
}

type deltaWriter struct {
	handler llm.StreamHandler
	text    string
}

func (c *Client) StreamComplete(ctx context.Context, instructions string, messages []llm.Message, handler llm.StreamHandler) (string, error) {
	stream := c.sdk.Messages.NewStreaming(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: instructions}},
		Messages:  toAnthropicMessages(messages),
	})
	dw := &deltaWriter{handler: handler}
	for stream.Next() {
		event := stream.Current()
		if delta := event.Delta.Text; delta != "" {
			dw.text += delta
			if handler != nil {
				handler.OnDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return dw.text, fmt.Errorf("%w: anthropic stream: %v", apperr.ErrTransient, err)
	}
	return dw.text, nil
}
