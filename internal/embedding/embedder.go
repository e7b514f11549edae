// Package embedding implements the Embedder contract: text to a fixed-
// dimension vector, via an HTTP-backed provider or a deterministic
// hash-based double for tests.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"recalld/internal/apperr"
	"recalld/internal/config"
)

// Embedder turns text into a fixed-dimension vector. D is configured once at
// init and never changes for a deployment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// New constructs the Embedder named by cfg.Backend.
func New(cfg config.EmbeddingConfig, httpClient *http.Client) (Embedder, error) {
	switch cfg.Backend {
	case "deterministic":
		return NewDeterministic(cfg.Dimensions, true, 0), nil
	default:
		return NewHTTPEmbedder(cfg, httpClient), nil
	}
}

// httpEmbedder calls a configured OpenAI-compatible /embeddings endpoint,
// rate-limited to avoid hammering self-hosted backends.
type httpEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewHTTPEmbedder constructs an Embedder backed by an HTTP call.
func NewHTTPEmbedder(cfg config.EmbeddingConfig, client *http.Client) Embedder {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpEmbedder{cfg: cfg, client: client, minDelay: 20 * time.Millisecond}
}

func (e *httpEmbedder) Name() string   { return "http:" + e.cfg.Model }
func (e *httpEmbedder) Dimension() int { return e.cfg.Dimensions }

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *httpEmbedder) throttle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wait := e.minDelay - time.Since(e.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	e.lastCall = time.Now()
}

func (e *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no inputs to embed", apperr.ErrValidation)
	}
	e.throttle()
	body, _ := json.Marshal(embedReq{Model: e.cfg.Model, Input: texts})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+e.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build embed request: %v", apperr.ErrStore, err)
	}
	if e.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	} else if e.cfg.APIHeader != "" {
		req.Header.Set(e.cfg.APIHeader, e.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embed request: %v", apperr.ErrTransient, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embed response: %v", apperr.ErrTransient, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: embed endpoint returned %s: %s", apperr.ErrTransient, resp.Status, string(respBody))
	}
	var er embedResp
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, fmt.Errorf("%w: parse embed response: %v", apperr.ErrLLMParse, err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embed count mismatch: got %d, want %d", apperr.ErrLLMParse, len(er.Data), len(texts))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// deterministicEmbedder hashes character trigrams into a fixed-dimension
// vector; used for tests and for local runs without a real embedding
// backend configured.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint32
}

// NewDeterministic constructs a hash-based Embedder.
func NewDeterministic(dim int, normalize bool, seed uint32) Embedder {
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (e *deterministicEmbedder) Name() string   { return "deterministic" }
func (e *deterministicEmbedder) Dimension() int { return e.dim }

func (e *deterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embedOne(text), nil
}

func (e *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *deterministicEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	if e.dim == 0 {
		return vec
	}
	runes := []rune(strings.ToLower(strings.TrimSpace(text)))
	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes) || (i == 0 && n == 0); i++ {
		gram := string(runes[i : i+n])
		h := fnv.New32a()
		if e.seed != 0 {
			_, _ = h.Write([]byte{byte(e.seed), byte(e.seed >> 8), byte(e.seed >> 16), byte(e.seed >> 24)})
		}
		_, _ = h.Write([]byte(gram))
		idx := int(h.Sum32()) % e.dim
		if idx < 0 {
			idx += e.dim
		}
		vec[idx]++
		if n == 0 {
			break
		}
	}
	if e.normalize {
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for i := range vec {
				vec[i] = float32(float64(vec[i]) / norm)
			}
		}
	}
	return vec
}

// CheckReachability verifies the embedding endpoint is reachable by sending
// a small test request. Only meaningful for the HTTP-backed embedder.
func CheckReachability(ctx context.Context, e Embedder) error {
	_, err := e.Embed(ctx, "ping")
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
