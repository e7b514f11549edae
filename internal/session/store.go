package session

import (
	"context"
	"time"
)

// Store is the SessionStore contract: all operations are scoped by
// session_id; ownership checks against user_id are the caller's
// responsibility, but a missing session and a foreign session both return
// apperr.ErrNotFound to avoid enumeration.
type Store interface {
	Create(ctx context.Context, userID, title string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	List(ctx context.Context, userID string) ([]*Session, error)
	Delete(ctx context.Context, sessionID string) error
	UpdateTitle(ctx context.Context, sessionID, title string) error

	AppendMessage(ctx context.Context, sessionID string, role Role, content string, ts time.Time) (int, error)
	MessagesSince(ctx context.Context, sessionID string, index int) ([]Message, error)
	RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error)

	AdvanceMemoryWatermark(ctx context.Context, sessionID string, index int) error
	AdvanceSummaryWatermark(ctx context.Context, sessionID string, index int, summaryText string, summaryVector []float32) error

	Close()
}
