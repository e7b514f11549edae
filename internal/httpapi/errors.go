package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"recalld/internal/apperr"
	"recalld/internal/observability"
)

// errorEnvelope is the {error_code, message, details?, timestamp,
// request_id} shape every non-2xx response carries.
type errorEnvelope struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeTransient:
		return http.StatusServiceUnavailable
	case apperr.CodeLLMParse:
		return http.StatusInternalServerError
	case apperr.CodeFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes payload as a 2xx JSON body.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the error envelope, deriving the HTTP status and
// error_code from err via apperr's sentinel taxonomy. The request_id here
// always matches the X-Request-ID response header set by the request-id
// middleware.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	code := apperr.CodeFor(err)
	status := statusForCode(code)
	requestID, _ := observability.RequestIDFromContext(ctx)
	respondJSON(w, status, errorEnvelope{
		ErrorCode: string(code),
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
	})
}

// requestIDMiddleware assigns or echoes X-Request-ID, stashes it on the
// request context so every log line for this request carries it, and
// reflects it back in the response header.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
