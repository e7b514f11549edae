// Package providers selects and constructs a concrete llm.Provider from
// configuration.
package providers

import (
	"fmt"
	"net/http"

	"recalld/internal/config"
	"recalld/internal/llm"
	"recalld/internal/llm/anthropic"
	"recalld/internal/llm/google"
	"recalld/internal/llm/openai"
)

// Build constructs the llm.Provider named by cfg.LLM.Provider.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(cfg, httpClient)
	case "openai":
		return openai.New(cfg, httpClient)
	case "google":
		return google.New(cfg, httpClient)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
