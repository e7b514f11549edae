package llm

import (
	"os"
	"strconv"
	"strings"
)

// knownContextWindows covers the models recalld ships providers for. Unknown
// models fall back to a conservative default.
var knownContextWindows = map[string]int{
	"claude-opus-4-1":      200_000,
	"claude-sonnet-4-5":    200_000,
	"claude-haiku-4-5":     200_000,
	"gpt-5.1":              400_000,
	"gpt-5.1-mini":         400_000,
	"gpt-4o":               128_000,
	"gemini-3-pro":         1_000_000,
	"gemini-2.5-flash":     1_000_000,
	"text-embedding-3":     8_191,
	"text-embedding-004":   2_048,
}

const defaultContextWindow = 32_000

// ContextSize returns the known context window for model, honoring a
// per-model or global override via RECALLD_CONTEXT_WINDOW_<MODEL> / the
// wildcard RECALLD_CONTEXT_WINDOW_ANY env vars.
func ContextSize(model string) (tokens int, known bool) {
	if n, ok := lookupContextOverride(model); ok {
		return n, true
	}
	if n, ok := knownContextWindows[model]; ok {
		return n, true
	}
	return defaultContextWindow, false
}

func lookupContextOverride(model string) (int, bool) {
	key := "RECALLD_CONTEXT_WINDOW_" + sanitizeEnvSuffix(model)
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECALLD_CONTEXT_WINDOW_ANY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func sanitizeEnvSuffix(s string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return strings.ToUpper(r.Replace(s))
}
