// Package embedding turns legal text into vectors for semantic search.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrDisabled is returned by the disabled provider.
	ErrDisabled = errors.New("embeddings disabled")
	// ErrEmptyText is returned for blank input; providers reject it anyway.
	ErrEmptyText = errors.New("embedding input is empty")
)

// MaxInputBytes bounds the text sent to a remote provider. Longer input is
// cut at a word boundary.
const MaxInputBytes = 24000

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// APIError is a non-2xx reply from a remote provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.Status, e.Body)
}

// remote is the JSON-over-HTTP transport the hosted providers share.
type remote struct {
	provider string
	url      string
	header   http.Header
	dims     int
	client   *http.Client
}

func newRemote(provider, url string, dims int) remote {
	return remote{
		provider: provider,
		url:      url,
		header:   http.Header{"Content-Type": []string{"application/json"}},
		dims:     dims,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *remote) post(ctx context.Context, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = r.header.Clone()

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", r.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Provider: r.provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", r.provider, err)
	}
	return nil
}

func (r *remote) Dims() int { return r.dims }

// --- Ollama Provider ---

// OllamaEmbedder uses a local Ollama instance.
type OllamaEmbedder struct {
	remote
	model string
}

type ollamaRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder using Ollama's /api/embed endpoint.
// Default model: nomic-embed-text (768 dims); all-minilm is 384 dims.
func NewOllamaEmbedder(baseURL, model string, dims int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dims == 0 {
		dims = 768
		if model == "all-minilm" {
			dims = 384
		}
	}
	return &OllamaEmbedder{
		remote: newRemote("ollama", strings.TrimSuffix(baseURL, "/")+"/api/embed", dims),
		model:  model,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	var res ollamaResponse
	if err := e.post(ctx, ollamaRequest{Model: e.model, Input: text}, &res); err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, errors.New("ollama returned no embedding")
	}
	return checkDims(res.Embeddings[0], e.dims)
}

// --- OpenAI-compatible Provider ---

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	remote
	model string
}

type openaiEmbedRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an embedder using an OpenAI-compatible API.
// Default model: text-embedding-3-small (1536 dims).
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	r := newRemote("openai", strings.TrimSuffix(baseURL, "/")+"/embeddings", dims)
	if apiKey != "" {
		r.header.Set("Authorization", "Bearer "+apiKey)
	}
	return &OpenAIEmbedder{remote: r, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	req := openaiEmbedRequest{Input: text, Model: e.model}
	// Only the v3 models accept a requested dimension.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dims
	}
	var res openaiEmbedResponse
	if err := e.post(ctx, req, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, errors.New("openai returned no embedding")
	}
	return checkDims(res.Data[0].Embedding, e.dims)
}

// prepare trims the input and cuts it to MaxInputBytes.
func prepare(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	return truncate(text, MaxInputBytes), nil
}

// truncate cuts s to at most n bytes, at the last space when there is one and
// never inside a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndexByte(s[:cut], ' '); i > 0 {
		cut = i
	}
	return s[:cut]
}

func checkDims(v Vector, dims int) (Vector, error) {
	if len(v) != dims {
		return nil, fmt.Errorf("embedding has %d dims, want %d", len(v), dims)
	}
	return v, nil
}

// --- Disabled Provider ---

// Disabled fails every call, which turns vector enrichment into a recorded no-op.
type Disabled struct {
	dims int
}

func (d Disabled) Embed(ctx context.Context, text string) (Vector, error) { return nil, ErrDisabled }
func (d Disabled) Dims() int                                              { return d.dims }

// --- Factory ---

// Config selects and configures a provider.
type Config struct {
	Provider string // openai | ollama | hash | disabled
	Model    string
	BaseURL  string
	APIKey   string
	Dims     int
}

// New creates the configured embedder.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, errors.New("openai embeddings need an API key")
		}
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dims), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dims), nil
	case "hash":
		return NewHashEmbedder(cfg.Dims), nil
	case "", "disabled", "none":
		dims := cfg.Dims
		if dims == 0 {
			dims = 1536
		}
		return Disabled{dims: dims}, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}
