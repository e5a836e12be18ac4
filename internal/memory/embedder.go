// ABOUTME: Embedder contract with an OpenAI-compatible HTTP client and a deterministic hash embedder
// ABOUTME: The hash embedder backs tests and offline runs without a model endpoint

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/2389/memos-gateway/internal/config"
)

// Embedder converts text to vector embeddings
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// newEmbedder builds an embedder from config. The "mock" provider selects the
// deterministic hash embedder; everything else goes through the
// OpenAI-compatible HTTP API.
func newEmbedder(cfg config.EmbedderConfig) Embedder {
	if cfg.Provider == "mock" {
		return NewHashEmbedder()
	}
	return NewAPIEmbedder(cfg)
}

// APIEmbedder calls an OpenAI-compatible /embeddings endpoint
type APIEmbedder struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	dims    int
}

// NewAPIEmbedder creates an embedder backed by an OpenAI-compatible API
func NewAPIEmbedder(cfg config.EmbedderConfig) *APIEmbedder {
	return &APIEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests an embedding for the given text
func (e *APIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, msg)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding API returned no vectors")
	}

	vec := parsed.Data[0].Embedding
	e.dims = len(vec)
	return vec, nil
}

// Dimensions returns the embedding size observed from the API, or 0 before
// the first successful call
func (e *APIEmbedder) Dimensions() int {
	return e.dims
}

// HashEmbedder generates deterministic embeddings from a text hash.
// Identical text always maps to the identical unit vector, which is enough
// for exercising storage and retrieval without a model endpoint.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a 384-dimension hash embedder
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{dims: 384}
}

// Embed creates a deterministic embedding from the FNV hash of the text
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	embedding := make([]float32, h.dims)
	for i := range embedding {
		// Linear congruential generator seeded by the hash
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// normalize converts a vector to unit length
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
