package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recalld/internal/apperr"
	"recalld/internal/observability"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed Store, creating its tables if
// they do not already exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	s := &pgStore{pool: pool}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    message_count INTEGER NOT NULL DEFAULT 0,
    last_memory_processed_at INTEGER NOT NULL DEFAULT 0,
    last_summary_generated_at INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    summary_vector REAL[]
);

CREATE INDEX IF NOT EXISTS sessions_user_activity_idx ON sessions(user_id, last_activity DESC);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(session_id, idx)
);

CREATE INDEX IF NOT EXISTS messages_session_idx_idx ON messages(session_id, idx);
`); err != nil {
		return nil, fmt.Errorf("%w: create session tables: %v", apperr.ErrStore, err)
	}
	return s, nil
}

func (s *pgStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *pgStore) scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var vec []float32
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.LastActivity,
		&sess.MessageCount, &sess.LastMemoryProcessedAt, &sess.LastSummaryGeneratedAt, &sess.Summary, &vec); err != nil {
		return nil, err
	}
	sess.SummaryVector = vec
	return &sess, nil
}

const sessionColumns = `id, user_id, title, created_at, last_activity, message_count, last_memory_processed_at, last_summary_generated_at, summary, summary_vector`

func (s *pgStore) Create(ctx context.Context, userID, title string) (*Session, error) {
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	if title == "" {
		title = "New Chat " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
INSERT INTO sessions (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING `+sessionColumns, id, userID, title)
	sess, err := s.scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", apperr.ErrStore, err)
	}
	return sess, nil
}

func (s *pgStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	sess, err := s.scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get session: %v", apperr.ErrStore, err)
	}
	return sess, nil
}

func (s *pgStore) List(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", apperr.ErrStore, err)
	}
	defer rows.Close()
	out := make([]*Session, 0)
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", apperr.ErrStore, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, sessionID string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: delete session: %v", apperr.ErrStore, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *pgStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	cmd, err := s.pool.Exec(ctx, `UPDATE sessions SET title = $2, last_activity = NOW() WHERE id = $1`, sessionID, title)
	if err != nil {
		return fmt.Errorf("%w: update title: %v", apperr.ErrStore, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *pgStore) AppendMessage(ctx context.Context, sessionID string, role Role, content string, ts time.Time) (int, error) {
	log := observability.LoggerWithTrace(ctx)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: begin append: %v", apperr.ErrStore, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var idx int
	row := tx.QueryRow(ctx, `
UPDATE sessions
SET message_count = message_count + 1, last_activity = $2
WHERE id = $1
RETURNING message_count`, sessionID, ts)
	if err := row.Scan(&idx); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.ErrNotFound
		}
		return 0, fmt.Errorf("%w: bump message count: %v", apperr.ErrStore, err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO messages (id, session_id, idx, role, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), sessionID, idx, string(role), content, ts); err != nil {
		return 0, fmt.Errorf("%w: insert message: %v", apperr.ErrStore, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit append: %v", apperr.ErrStore, err)
	}
	log.Debug().Str("session_id", sessionID).Int("index", idx).Msg("session: message appended")
	return idx, nil
}

func (s *pgStore) MessagesSince(ctx context.Context, sessionID string, index int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, idx, role, content, created_at
FROM messages
WHERE session_id = $1 AND idx > $2
ORDER BY idx ASC`, sessionID, index)
	if err != nil {
		return nil, fmt.Errorf("%w: messages since: %v", apperr.ErrStore, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *pgStore) RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, idx, role, content, created_at FROM (
    SELECT id, session_id, idx, role, content, created_at
    FROM messages
    WHERE session_id = $1
    ORDER BY idx DESC
    LIMIT $2
) sub
ORDER BY idx ASC`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: recent messages: %v", apperr.ErrStore, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Index, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", apperr.ErrStore, err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) AdvanceMemoryWatermark(ctx context.Context, sessionID string, index int) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE sessions SET last_memory_processed_at = GREATEST(last_memory_processed_at, $2) WHERE id = $1`, sessionID, index)
	if err != nil {
		return fmt.Errorf("%w: advance memory watermark: %v", apperr.ErrStore, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *pgStore) AdvanceSummaryWatermark(ctx context.Context, sessionID string, index int, summaryText string, summaryVector []float32) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE sessions
SET last_summary_generated_at = GREATEST(last_summary_generated_at, $2),
    summary = CASE WHEN $2 > last_summary_generated_at THEN $3 ELSE summary END,
    summary_vector = CASE WHEN $2 > last_summary_generated_at THEN $4 ELSE summary_vector END
WHERE id = $1`, sessionID, index, summaryText, summaryVector)
	if err != nil {
		return fmt.Errorf("%w: advance summary watermark: %v", apperr.ErrStore, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
