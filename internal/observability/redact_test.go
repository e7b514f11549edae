package observability

import (
	"encoding/json"
	"testing"
)

func TestRedactJSONScrubsCredentialKeysRecursively(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"api_key": "sk-123",
		"note":    "keepme",
		"session": map[string]any{"password": "hunter2", "user": "alice"},
		"batch": []any{
			map[string]any{"Authorization": "Bearer abc"},
			"plain",
		},
	})

	var got map[string]any
	if err := json.Unmarshal(RedactJSON(raw), &got); err != nil {
		t.Fatalf("unmarshal redacted payload: %v", err)
	}
	if got["api_key"] != redactedPlaceholder {
		t.Errorf("api_key = %v, want placeholder", got["api_key"])
	}
	if got["note"] != "keepme" {
		t.Errorf("note = %v, non-sensitive value must survive", got["note"])
	}
	nested := got["session"].(map[string]any)
	if nested["password"] != redactedPlaceholder || nested["user"] != "alice" {
		t.Errorf("nested object not scrubbed correctly: %v", nested)
	}
	batch := got["batch"].([]any)
	if batch[0].(map[string]any)["Authorization"] != redactedPlaceholder {
		t.Errorf("array element not scrubbed: %v", batch[0])
	}
	if batch[1] != "plain" {
		t.Errorf("plain array element mutated: %v", batch[1])
	}
}

func TestRedactJSONPassesThroughEmptyAndInvalid(t *testing.T) {
	if got := RedactJSON(nil); got != nil {
		t.Errorf("empty input should come back unchanged, got %s", got)
	}
	if got := RedactJSON(json.RawMessage("not json")); string(got) != "not json" {
		t.Errorf("invalid json should come back unchanged, got %s", got)
	}
}

func TestCredentialKeyMatchesHeaderVariants(t *testing.T) {
	for _, key := range []string{"X-Api-Key", "HTTP_AUTHORIZATION", "refresh_token", "clientSecret"} {
		if !credentialKey(key) {
			t.Errorf("expected %q to be treated as a credential key", key)
		}
	}
	if credentialKey("content") {
		t.Error("content must not be treated as a credential key")
	}
}
