package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recalld/internal/apperr"
	"recalld/internal/embedding"
	"recalld/internal/llm"
	"recalld/internal/observability"
)

const consolidatorInstructions = `You reconcile new candidate facts about a user against facts already on record.
You are given two JSON lists: EXISTING (facts already stored, each with an id) and NEW (freshly extracted candidates).
For each candidate, decide one of three outcomes:
- identical: the candidate restates an existing fact with no new information. Drop it: do not include it in your output.
- supersedes: the candidate corrects or updates an existing fact. Emit the existing fact's id with status "outdated", and emit the candidate itself with status "active" and no id.
- independent: the candidate is unrelated to all existing facts. Emit it with status "active" and no id.
Never invent an id that is not in EXISTING. Never mark a fact outdated unless a candidate supersedes it.`

var consolidationSchema = llm.ToolSchema{
	Name:        "reconcile_memories",
	Description: "Report which memories to write and with what status.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"actions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string"},
						"content": {"type": "string"},
						"type": {"type": "string"},
						"status": {"type": "string", "enum": ["active", "outdated"]}
					},
					"required": ["status"]
				}
			}
		},
		"required": ["actions"]
	}`),
}

type consolidationAction struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

type consolidationResult struct {
	Actions []consolidationAction `json:"actions"`
}

// Write describes a single store mutation the coordinator should apply.
type Write struct {
	Memory Memory
	Insert bool // true for insert, false for update
}

// Consolidator reconciles freshly extracted candidates against the memories
// already on record for a user, avoiding duplicate or stale facts.
type Consolidator struct {
	provider  llm.Provider
	embedder  embedding.Embedder
	retriever *Retriever
	searchK   int
}

// NewConsolidator constructs a Consolidator. searchK bounds how many similar
// existing memories are pulled per candidate (the memory_search_limit
// configuration value).
func NewConsolidator(provider llm.Provider, embedder embedding.Embedder, retriever *Retriever, searchK int) *Consolidator {
	return &Consolidator{provider: provider, embedder: embedder, retriever: retriever, searchK: searchK}
}

// Reconcile turns candidates into a set of store writes, querying the
// Retriever for each candidate's neighborhood and, when any exist, asking
// the LLM to classify identical/supersedes/independent.
func (c *Consolidator) Reconcile(ctx context.Context, userID string, candidates []Candidate) ([]Write, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	log := observability.LoggerWithTrace(ctx)

	existingByID := make(map[string]Memory)
	for _, cand := range candidates {
		neighbors, err := c.retriever.Search(ctx, cand.Content, userID, c.searchK)
		if err != nil {
			log.Warn().Err(err).Msg("consolidator: retriever search failed, treating candidate as independent")
			continue
		}
		for _, m := range neighbors {
			existingByID[m.ID] = m
		}
	}

	if len(existingByID) == 0 {
		return c.insertAllAsNew(ctx, userID, candidates)
	}

	existing := make([]Memory, 0, len(existingByID))
	for _, m := range existingByID {
		existing = append(existing, m)
	}

	raw, err := c.provider.CompleteStructured(ctx, consolidatorInstructions, reconcilePrompt(existing, candidates), consolidationSchema)
	if err != nil {
		if errors.Is(err, apperr.ErrLLMParse) {
			log.Warn().Err(err).Msg("consolidator: structured output unusable, treating as empty consolidation")
			return nil, nil
		}
		return nil, fmt.Errorf("consolidator: llm call: %w", err)
	}
	var result consolidationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Warn().Err(err).Str("raw", string(observability.RedactJSON(raw))).Msg("consolidator: invalid json, treating as empty consolidation")
		return nil, nil
	}

	now := time.Now().UTC()
	writes := make([]Write, 0, len(result.Actions))
	for _, action := range result.Actions {
		switch action.Status {
		case string(StatusOutdated):
			existingMem, ok := existingByID[action.ID]
			if !ok {
				continue // refuse to invent an id not present in EXISTING
			}
			existingMem.Attributes.Status = StatusOutdated
			existingMem.UpdatedAt = now
			writes = append(writes, Write{Memory: existingMem, Insert: false})
		case string(StatusActive):
			vector, err := c.embedder.Embed(ctx, action.Content)
			if err != nil {
				log.Warn().Err(err).Msg("consolidator: embed candidate failed, dropping action")
				continue
			}
			typ := action.Type
			if typ == "" {
				typ = "miscellaneous"
			}
			if action.ID != "" {
				if existingMem, ok := existingByID[action.ID]; ok {
					existingMem.Content = action.Content
					existingMem.Vector = vector
					existingMem.Attributes.Type = typ
					existingMem.Attributes.Status = StatusActive
					existingMem.UpdatedAt = now
					writes = append(writes, Write{Memory: existingMem, Insert: false})
					continue
				}
			}
			writes = append(writes, Write{
				Memory: Memory{
					ID:      uuid.NewString(),
					UserID:  userID,
					Content: action.Content,
					Vector:  vector,
					Attributes: Attributes{
						Type:   typ,
						Status: StatusActive,
					},
					CreatedAt: now,
					UpdatedAt: now,
				},
				Insert: true,
			})
		}
	}
	return writes, nil
}

func (c *Consolidator) insertAllAsNew(ctx context.Context, userID string, candidates []Candidate) ([]Write, error) {
	now := time.Now().UTC()
	writes := make([]Write, 0, len(candidates))
	for _, cand := range candidates {
		vector, err := c.embedder.Embed(ctx, cand.Content)
		if err != nil {
			return nil, fmt.Errorf("consolidator: embed candidate: %w", err)
		}
		writes = append(writes, Write{
			Memory: Memory{
				ID:      uuid.NewString(),
				UserID:  userID,
				Content: cand.Content,
				Vector:  vector,
				Attributes: Attributes{
					Type:   cand.Type,
					Status: StatusActive,
				},
				CreatedAt: now,
				UpdatedAt: now,
			},
			Insert: true,
		})
	}
	return writes, nil
}

func reconcilePrompt(existing []Memory, candidates []Candidate) []llm.Message {
	type existingJSON struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	type candidateJSON struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	existingOut := make([]existingJSON, len(existing))
	for i, m := range existing {
		existingOut[i] = existingJSON{ID: m.ID, Content: m.Content, Type: m.Attributes.Type}
	}
	candidatesOut := make([]candidateJSON, len(candidates))
	for i, c := range candidates {
		candidatesOut[i] = candidateJSON{Content: c.Content, Type: c.Type}
	}
	existingRaw, _ := json.Marshal(existingOut)
	candidatesRaw, _ := json.Marshal(candidatesOut)
	return []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf("EXISTING: %s\nNEW: %s", existingRaw, candidatesRaw)},
	}
}

// ApplyWrites executes a Consolidator's writes against the store.
func ApplyWrites(ctx context.Context, store VectorStore, writes []Write) error {
	for _, w := range writes {
		if w.Insert {
			if err := store.Insert(ctx, w.Memory); err != nil {
				return err
			}
			continue
		}
		content := w.Memory.Content
		attrs := w.Memory.Attributes
		if err := store.Update(ctx, w.Memory.ID, Update{
			Vector:     w.Memory.Vector,
			Content:    &content,
			Attributes: &attrs,
		}); err != nil {
			return err
		}
	}
	return nil
}
