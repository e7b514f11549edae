package memory

import (
	"context"
	"encoding/json"

	"recalld/internal/llm"
	"recalld/internal/observability"
	"recalld/internal/session"
)

const topicInstructions = `You judge whether a conversation has changed topic.
A topic change is a shift across domains, such as food to programming, or health to travel.
Sub-topic drift within the same domain is not a change.
Follow-up questions and clarifications are not a change.
Answer only with your verdict.`

var topicSchema = llm.ToolSchema{
	Name:        "report_topic_change",
	Description: "Report whether the conversation window changed topic.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"changed": {"type": "boolean"}
		},
		"required": ["changed"]
	}`),
}

type topicVerdict struct {
	Changed bool `json:"changed"`
}

// TopicDetector is a binary classifier over a message window. It fails
// closed: any LLM error or malformed response is treated as "no change" so a
// flaky call never triggers a spurious extraction.
type TopicDetector struct {
	provider llm.Provider
}

// NewTopicDetector constructs a TopicDetector bound to a provider.
func NewTopicDetector(provider llm.Provider) *TopicDetector {
	return &TopicDetector{provider: provider}
}

// Detect returns true if window marks a topic change. It returns false
// trivially when window has fewer than two messages.
func (d *TopicDetector) Detect(ctx context.Context, window []session.Message) bool {
	if len(window) < 2 {
		return false
	}
	log := observability.LoggerWithTrace(ctx)

	raw, err := d.provider.CompleteStructured(ctx, topicInstructions, toLLMMessages(window), topicSchema)
	if err != nil {
		log.Warn().Err(err).Msg("topic detector: llm call failed, failing closed to no-change")
		return false
	}
	var verdict topicVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		log.Warn().Err(err).Str("raw", string(observability.RedactJSON(raw))).Msg("topic detector: invalid json, failing closed to no-change")
		return false
	}
	return verdict.Changed
}
