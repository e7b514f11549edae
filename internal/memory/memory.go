// Package memory implements the per-user durable-fact store: the Memory
// record type, the VectorStore abstraction over it, and the extraction,
// consolidation, topic-detection, retrieval, and summarization passes that
// turn chat turns into memories and keep the store non-redundant.
package memory

import "time"

// Status is the tagged variant a memory record carries: active records are
// eligible for retrieval, outdated records are retained for audit but never
// surfaced to chat context again.
type Status string

const (
	StatusActive   Status = "active"
	StatusOutdated Status = "outdated"
)

// Attributes is the closed record replacing the source's open-ended
// "memory_attributes" dict: Type and Status are the only two fields any
// caller ever reads, plus a free-form Extra map for forward-compatibility.
type Attributes struct {
	Type   string
	Status Status
	Extra  map[string]string
}

// Memory is a durable atomic fact about one user.
type Memory struct {
	ID         string
	UserID     string
	Content    string
	Vector     []float32
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Update carries a partial update to an existing memory; nil fields are left
// untouched.
type Update struct {
	Vector     []float32
	Content    *string
	Attributes *Attributes
}
