package memory

import (
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

const rfc3339 = time.RFC3339Nano

func nowRFC3339() string { return time.Now().UTC().Format(rfc3339) }

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func idFromPoint(fallback string, payload map[string]*qdrant.Value) string {
	if orig := payloadString(payload, qdrantPayloadIDField); orig != "" {
		return orig
	}
	return fallback
}

func memoryFromPoint(requestedID string, p *qdrant.RetrievedPoint) Memory {
	payload := p.GetPayload()
	m := Memory{
		ID:      idFromPoint(requestedID, payload),
		UserID:  payloadString(payload, "user_id"),
		Content: payloadString(payload, "content"),
		Attributes: Attributes{
			Type:   payloadString(payload, "type"),
			Status: Status(payloadString(payload, "status")),
		},
	}
	if dense := p.GetVectors().GetVector().GetData(); dense != nil {
		m.Vector = dense
	}
	m.CreatedAt, _ = time.Parse(rfc3339, payloadString(payload, "created_at"))
	m.UpdatedAt, _ = time.Parse(rfc3339, payloadString(payload, "updated_at"))
	return m
}

func memoryFromScoredPoint(p *qdrant.ScoredPoint) Memory {
	payload := p.GetPayload()
	uuidStr := p.GetId().GetUuid()
	m := Memory{
		ID:      idFromPoint(uuidStr, payload),
		UserID:  payloadString(payload, "user_id"),
		Content: payloadString(payload, "content"),
		Attributes: Attributes{
			Type:   payloadString(payload, "type"),
			Status: Status(payloadString(payload, "status")),
		},
	}
	m.CreatedAt, _ = time.Parse(rfc3339, payloadString(payload, "created_at"))
	m.UpdatedAt, _ = time.Parse(rfc3339, payloadString(payload, "updated_at"))
	return m
}

func memoryFromScrollPoint(p *qdrant.RetrievedPoint) Memory {
	uuidStr := p.GetId().GetUuid()
	return memoryFromPoint(uuidStr, p)
}

func sortMemoriesByCreatedDesc(ms []Memory) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].CreatedAt.After(ms[j].CreatedAt) })
}
