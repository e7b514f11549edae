package memory

import (
	"context"
	"fmt"
	"strings"

	"recalld/internal/embedding"
	"recalld/internal/llm"
	"recalld/internal/session"
)

const summarizerInstructions = `You maintain a rolling summary of a chat session.
Write 2 to 3 paragraphs that subsume the previous summary and preserve the chronological flow of the recent turns.
Optimize for minimum tokens at sufficient fidelity; the result is for LLM re-ingestion only, never shown to the user directly.`

// Summarized is a generated rolling summary paired with its embedding, ready
// to be persisted alongside a watermark advance.
type Summarized struct {
	Text   string
	Vector []float32
}

// Summarizer produces rolling session summaries and embeds them for later
// retrieval ranking.
type Summarizer struct {
	provider llm.Provider
	embedder embedding.Embedder
}

// NewSummarizer constructs a Summarizer bound to a provider and embedder.
func NewSummarizer(provider llm.Provider, embedder embedding.Embedder) *Summarizer {
	return &Summarizer{provider: provider, embedder: embedder}
}

// Summarize generates a new summary subsuming currentSummary and the window
// of recent messages, trimming the oldest messages that do not fit the
// model's context window before calling the LLM.
func (s *Summarizer) Summarize(ctx context.Context, currentSummary string, window []session.Message, model string) (Summarized, error) {
	trimmed := trimToContextWindow(window, model, currentSummary)

	messages := make([]llm.Message, 0, len(trimmed)+1)
	if currentSummary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "PREVIOUS SUMMARY: " + currentSummary})
	}
	messages = append(messages, toLLMMessages(trimmed)...)

	text, err := s.provider.Complete(ctx, summarizerInstructions, messages)
	if err != nil {
		return Summarized{}, fmt.Errorf("summarizer: complete: %w", err)
	}
	text = strings.TrimSpace(text)

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Summarized{}, fmt.Errorf("summarizer: embed: %w", err)
	}
	return Summarized{Text: text, Vector: vector}, nil
}

// trimToContextWindow drops the oldest messages in window until the
// estimated token count of (instructions + previous summary + remaining
// window) fits inside the model's known context size, using the same
// chars/4 heuristic the rest of the llm package relies on.
func trimToContextWindow(window []session.Message, model, currentSummary string) []session.Message {
	limit, _ := llm.ContextSize(model)
	budget := limit - llm.EstimateTokens(summarizerInstructions) - llm.EstimateTokens(currentSummary)
	if budget <= 0 {
		return nil
	}
	trimmed := window
	for len(trimmed) > 1 && llm.EstimateTokensForMessages(toLLMMessages(trimmed)) > budget {
		trimmed = trimmed[1:]
	}
	return trimmed
}
