// Package session implements the chat-thread store: sessions, their
// messages, and the memory/summary watermarks that drive the lifecycle
// coordinator's idempotent dispatch decisions.
package session

import "time"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session is a chat thread belonging to one user.
type Session struct {
	ID                     string
	UserID                 string
	Title                  string
	CreatedAt              time.Time
	LastActivity           time.Time
	MessageCount           int
	LastMemoryProcessedAt  int
	LastSummaryGeneratedAt int
	Summary                string
	SummaryVector          []float32
}

// Message is one turn in a Session. Index is 1-based: the n-th message of a
// session carries Index n, so a session's MessageCount always equals its
// newest message's Index.
type Message struct {
	ID        string
	SessionID string
	Index     int
	Role      Role
	Content   string
	CreatedAt time.Time
}

// MaxTitleLen bounds Session.Title; titles longer than this are truncated at
// creation time.
const MaxTitleLen = 100

// WatermarkUnset is the "nothing processed yet" sentinel for
// LastMemoryProcessedAt/LastSummaryGeneratedAt. Message indices are 1-based,
// so 0 sits below every real index and the strict ">" of MessagesSince
// naturally includes the whole session.
const WatermarkUnset = 0

// TitleFromMessage derives a session title stub from the opening message,
// truncating to 50 runes.
func TitleFromMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= 50 {
		return string(runes)
	}
	return string(runes[:50])
}
