package memory

import (
	"context"
	"encoding/json"
	"strings"

	"recalld/internal/llm"
	"recalld/internal/observability"
	"recalld/internal/session"
)

const extractorInstructions = `You extract durable facts about the user from a conversation window.
Only consider user and assistant turns; ignore system turns.
Return an empty list for small talk, acknowledgements, or non-informative exchanges.
Write each fact as a terse third-person sentence ("Name is John", "Prefers Japanese cuisine"), never a quote.
Match the dominant language of the user's turns.
Classify each fact with a single lowercase type token (personal, preference, activity, plan, health, professional, miscellaneous, or another short token if none fit).`

var extractionSchema = llm.ToolSchema{
	Name:        "record_memories",
	Description: "Record the durable facts extracted from this conversation window.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"memories": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string"},
						"type": {"type": "string"}
					},
					"required": ["content", "type"]
				}
			}
		},
		"required": ["memories"]
	}`),
}

type extractedMemory struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type extractionResult struct {
	Memories []extractedMemory `json:"memories"`
}

// Extractor turns a message window into candidate memories via a structured
// LLM call. A malformed or failed LLM response is folded into an empty
// extraction; the job layer is responsible for retries, not this type.
type Extractor struct {
	provider llm.Provider
}

// NewExtractor constructs an Extractor bound to a provider.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Candidate is a fact pulled from a conversation window, not yet assigned an
// id or reconciled against the store.
type Candidate struct {
	Content string
	Type    string
}

// Extract returns the candidate memories found in window. It never returns
// an error for LLM-shaped failures (invalid JSON, empty tool call); those
// collapse to a nil slice with a log line distinguishing the cause.
func (e *Extractor) Extract(ctx context.Context, window []session.Message) ([]Candidate, error) {
	log := observability.LoggerWithTrace(ctx)

	msgs := toLLMMessages(window)
	if len(msgs) == 0 {
		return nil, nil
	}

	raw, err := e.provider.CompleteStructured(ctx, extractorInstructions, msgs, extractionSchema)
	if err != nil {
		log.Warn().Err(err).Msg("extractor: llm call failed, treating as empty extraction")
		return nil, nil
	}

	var result extractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Warn().Err(err).Str("raw", string(observability.RedactJSON(raw))).Msg("extractor: invalid json, treating as empty extraction")
		return nil, nil
	}

	out := make([]Candidate, 0, len(result.Memories))
	for _, m := range result.Memories {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(m.Type))
		if typ == "" {
			typ = "miscellaneous"
		}
		out = append(out, Candidate{Content: content, Type: typ})
	}
	return out, nil
}

func toLLMMessages(window []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(window))
	for _, m := range window {
		switch m.Role {
		case session.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case session.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		default:
			// system turns are excluded per contract
		}
	}
	return out
}
