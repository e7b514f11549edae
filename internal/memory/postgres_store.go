package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"recalld/internal/apperr"
)

// pgStore is a Postgres/pgvector-backed VectorStore. Cosine is the default
// metric; l2 and ip are supported via the matching pgvector operator.
type pgStore struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string
}

// NewPostgresStore opens (and migrates) the memories table on pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, dimensions int, metric string) (VectorStore, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memories (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  content TEXT NOT NULL,
  vector %s,
  type TEXT NOT NULL DEFAULT 'miscellaneous',
  status TEXT NOT NULL DEFAULT 'active',
  extra JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories(user_id);
`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create memories table: %w", err)
	}
	return &pgStore{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *pgStore) Insert(ctx context.Context, m Memory) error {
	extra, _ := json.Marshal(m.Attributes.Extra)
	_, err := p.pool.Exec(ctx, `
INSERT INTO memories(id, user_id, content, vector, type, status, extra, created_at, updated_at)
VALUES ($1, $2, $3, $4::vector, $5, $6, $7, now(), now())
`, m.ID, m.UserID, m.Content, toVectorLiteral(m.Vector), m.Attributes.Type, string(m.Attributes.Status), extra)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("%w: insert memory: %v", apperr.ErrStore, err)
	}
	return nil
}

func (p *pgStore) Update(ctx context.Context, id string, u Update) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	argN := 1
	if u.Vector != nil {
		sets = append(sets, fmt.Sprintf("vector = $%d::vector", argN))
		args = append(args, toVectorLiteral(u.Vector))
		argN++
	}
	if u.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", argN))
		args = append(args, *u.Content)
		argN++
	}
	if u.Attributes != nil {
		sets = append(sets, fmt.Sprintf("type = $%d", argN))
		args = append(args, u.Attributes.Type)
		argN++
		sets = append(sets, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(u.Attributes.Status))
		argN++
		extra, _ := json.Marshal(u.Attributes.Extra)
		sets = append(sets, fmt.Sprintf("extra = $%d", argN))
		args = append(args, extra)
		argN++
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d", strings.Join(sets, ", "), argN)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update memory: %v", apperr.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *pgStore) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete memory: %v", apperr.ErrStore, err)
	}
	return nil
}

func (p *pgStore) DeleteAll(ctx context.Context, userID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM memories WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%w: delete all memories: %v", apperr.ErrStore, err)
	}
	return nil
}

func (p *pgStore) Search(ctx context.Context, userID string, queryVector []float32, k int) ([]Memory, error) {
	if k <= 0 {
		k = 10
	}
	if k > MaxSearchK {
		k = MaxSearchK
	}
	op := "<=>"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
	case "ip", "dot":
		op = "<#>"
	}
	vecLit := toVectorLiteral(queryVector)
	// Over-fetch a small multiple of k so the Go-side tie-break (UpdatedAt
	// desc, then ID) can re-sort ties the DB's single ORDER BY key collapses.
	fetch := k * 3
	if fetch < k+10 {
		fetch = k + 10
	}
	query := fmt.Sprintf(`
SELECT id, user_id, content, type, status, extra, created_at, updated_at, vector %s $1::vector AS dist
FROM memories
WHERE user_id = $2 AND status = 'active'
ORDER BY vector %s $1::vector
LIMIT $3`, op, op)
	rows, err := p.pool.Query(ctx, query, vecLit, userID, fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: search memories: %v", apperr.ErrStore, err)
	}
	defer rows.Close()

	var scoredItems []scored
	for rows.Next() {
		var m Memory
		var extra []byte
		var dist float64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Attributes.Type, &m.Attributes.Status, &extra, &m.CreatedAt, &m.UpdatedAt, &dist); err != nil {
			return nil, fmt.Errorf("%w: scan memory row: %v", apperr.ErrStore, err)
		}
		_ = json.Unmarshal(extra, &m.Attributes.Extra)
		scoredItems = append(scoredItems, scored{mem: m, distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate memory rows: %v", apperr.ErrStore, err)
	}
	sortByDistance(scoredItems)
	if len(scoredItems) > k {
		scoredItems = scoredItems[:k]
	}
	out := make([]Memory, len(scoredItems))
	for i, it := range scoredItems {
		out[i] = it.mem
	}
	return out, nil
}

func (p *pgStore) GetByUser(ctx context.Context, userID string, limit int) ([]Memory, error) {
	query := `SELECT id, user_id, content, type, status, extra, created_at, updated_at FROM memories WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get memories by user: %v", apperr.ErrStore, err)
	}
	defer rows.Close()
	var out []Memory
	for rows.Next() {
		var m Memory
		var extra []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Attributes.Type, &m.Attributes.Status, &extra, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan memory row: %v", apperr.ErrStore, err)
		}
		_ = json.Unmarshal(extra, &m.Attributes.Extra)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *pgStore) Close() error {
	p.pool.Close()
	return nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value") || strings.Contains(err.Error(), "SQLSTATE 23505")
}
