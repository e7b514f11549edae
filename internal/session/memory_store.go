package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recalld/internal/apperr"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message
}

// NewInMemoryStore constructs a Store backed by an in-process map, for tests
// and single-process deployments that opt out of persistence.
func NewInMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *memoryStore) Create(_ context.Context, userID, title string) (*Session, error) {
	if strings.TrimSpace(title) == "" {
		title = "New Chat " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		Title:                  title,
		CreatedAt:              now,
		LastActivity:           now,
		LastMemoryProcessedAt:  WatermarkUnset,
		LastSummaryGeneratedAt: WatermarkUnset,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (s *memoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memoryStore) List(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func (s *memoryStore) UpdateTitle(_ context.Context, sessionID, title string) error {
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.ErrNotFound
	}
	sess.Title = title
	sess.LastActivity = time.Now().UTC()
	return nil
}

func (s *memoryStore) AppendMessage(_ context.Context, sessionID string, role Role, content string, ts time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	idx := len(s.messages[sessionID]) + 1
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Index:     idx,
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	sess.MessageCount = len(s.messages[sessionID])
	sess.LastActivity = ts
	return idx, nil
}

func (s *memoryStore) MessagesSince(_ context.Context, sessionID string, index int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, apperr.ErrNotFound
	}
	all := s.messages[sessionID]
	out := make([]Message, 0)
	for _, m := range all {
		if m.Index > index {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) RecentMessages(_ context.Context, sessionID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, apperr.ErrNotFound
	}
	all := s.messages[sessionID]
	if n <= 0 || n >= len(all) {
		out := make([]Message, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]Message, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (s *memoryStore) AdvanceMemoryWatermark(_ context.Context, sessionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.ErrNotFound
	}
	if index > sess.LastMemoryProcessedAt {
		sess.LastMemoryProcessedAt = index
	}
	return nil
}

func (s *memoryStore) AdvanceSummaryWatermark(_ context.Context, sessionID string, index int, summaryText string, summaryVector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.ErrNotFound
	}
	if index > sess.LastSummaryGeneratedAt {
		sess.LastSummaryGeneratedAt = index
		sess.Summary = summaryText
		sess.SummaryVector = summaryVector
	}
	return nil
}

func (s *memoryStore) Close() {}
