package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeSSE writes one Server-Sent Event with a JSON-encoded payload.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// sseDeltaWriter adapts llm.StreamHandler to emit one "content" SSE event
// per chunk as it arrives from the provider.
type sseDeltaWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseDeltaWriter) OnDelta(text string) {
	writeSSE(s.w, s.flusher, "content", map[string]string{"delta": text})
}
