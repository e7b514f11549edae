package observability

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// credentialKeys are the lowercase key fragments whose values never belong in
// a log line. A key matches if it equals or contains any fragment, which
// covers header-style variants (X-Api-Key, HTTP_AUTHORIZATION) without
// enumerating them.
var credentialKeys = []string{
	"api_key", "api-key", "apikey", "authorization", "auth", "token", "password", "secret", "bearer", "credential",
}

// RedactJSON returns raw with the values of credential-shaped keys replaced
// by a placeholder, recursing through nested objects and arrays. Empty input
// and payloads that fail to parse come back unchanged, so the caller can
// always log the result.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return raw
	}
	scrubbed, err := json.Marshal(scrub(payload))
	if err != nil {
		return raw
	}
	return scrubbed
}

func scrub(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if credentialKey(key) {
				node[key] = redactedPlaceholder
				continue
			}
			node[key] = scrub(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = scrub(child)
		}
		return node
	default:
		return v
	}
}

func credentialKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range credentialKeys {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
