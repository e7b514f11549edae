package memory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"recalld/internal/apperr"
)

// qdrantPayloadIDField stores the original string ID when it isn't itself a
// UUID, since Qdrant point IDs must be UUIDs or positive integers.
const qdrantPayloadIDField = "_original_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantStore opens a gRPC connection to Qdrant and ensures the
// collection backing this deployment's memories exists.
func NewQdrantStore(dsn, collection string, dimensions int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	q := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	ctx := context.Background()
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (q *qdrantStore) Insert(ctx context.Context, m Memory) error {
	existing, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(mustPointID(m.ID))},
	})
	if err == nil && len(existing) > 0 {
		return apperr.ErrConflict
	}
	return q.upsert(ctx, m)
}

func (q *qdrantStore) Update(ctx context.Context, id string, u Update) error {
	cur, err := q.getOne(ctx, id)
	if err != nil {
		return err
	}
	if u.Vector != nil {
		cur.Vector = u.Vector
	}
	if u.Content != nil {
		cur.Content = *u.Content
	}
	if u.Attributes != nil {
		cur.Attributes = *u.Attributes
	}
	return q.upsert(ctx, cur)
}

func (q *qdrantStore) upsert(ctx context.Context, m Memory) error {
	pointID := mustPointID(m.ID)
	payload := map[string]any{
		"user_id": m.UserID,
		"content": m.Content,
		"type":    m.Attributes.Type,
		"status":  string(m.Attributes.Status),
	}
	if !m.CreatedAt.IsZero() {
		payload["created_at"] = m.CreatedAt.Format(rfc3339)
	}
	payload["updated_at"] = nowRFC3339()
	if pointID != m.ID {
		payload[qdrantPayloadIDField] = m.ID
	}
	vec := make([]float32, len(m.Vector))
	copy(vec, m.Vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert: %v", apperr.ErrStore, err)
	}
	return nil
}

func (q *qdrantStore) Delete(ctx context.Context, id string) error {
	pointID := mustPointID(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID)),
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant delete: %v", apperr.ErrStore, err)
	}
	return nil
}

func (q *qdrantStore) DeleteAll(ctx context.Context, userID string) error {
	selector := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)},
			},
		},
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         selector,
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant delete all: %v", apperr.ErrStore, err)
	}
	return nil
}

func (q *qdrantStore) getOne(ctx context.Context, id string) (Memory, error) {
	pointID := mustPointID(id)
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointID)},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Memory{}, fmt.Errorf("%w: qdrant get: %v", apperr.ErrStore, err)
	}
	if len(points) == 0 {
		return Memory{}, apperr.ErrNotFound
	}
	return memoryFromPoint(id, points[0]), nil
}

func (q *qdrantStore) Search(ctx context.Context, userID string, queryVector []float32, k int) ([]Memory, error) {
	if k <= 0 {
		k = 10
	}
	if k > MaxSearchK {
		k = MaxSearchK
	}
	vec := make([]float32, len(queryVector))
	copy(vec, queryVector)
	fetch := uint64(k * 3)
	if fetch < uint64(k+10) {
		fetch = uint64(k + 10)
	}
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &fetch,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", userID),
				qdrant.NewMatch("status", string(StatusActive)),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query: %v", apperr.ErrStore, err)
	}
	var scoredItems []scored
	for _, hit := range results {
		m := memoryFromScoredPoint(hit)
		scoredItems = append(scoredItems, scored{mem: m, distance: 1 - float64(hit.Score)})
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

func (q *qdrantStore) GetByUser(ctx context.Context, userID string, limit int) ([]Memory, error) {
	lim := uint32(1000)
	if limit > 0 && limit < int(lim) {
		lim = uint32(limit)
	}
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)},
		},
		Limit:       &lim,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant scroll: %v", apperr.ErrStore, err)
	}
	out := make([]Memory, 0, len(points))
	for _, p := range points {
		out = append(out, memoryFromScrollPoint(p))
	}
	sortMemoriesByCreatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *qdrantStore) Close() error { return q.client.Close() }

func mustPointID(id string) string {
	pid, _ := pointIDFor(id)
	return pid
}
