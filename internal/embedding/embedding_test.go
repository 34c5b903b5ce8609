package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), tt.delta)
		})
	}
}

func TestNew(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, 1536, e.Dims())

	_, err = New(Config{Provider: "openai"})
	assert.Error(t, err, "openai without key")

	e, err = New(Config{Provider: "hash", Dims: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dims())

	_, err = New(Config{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(4096)

	a, err := e.Embed(ctx, "Water leak reported by tenant")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "water leak reported")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "contract signed for parking")
	require.NoError(t, err)

	assert.Len(t, a, 4096)
	again, _ := e.Embed(ctx, "Water leak reported by tenant")
	assert.Equal(t, a, again, "deterministic")
	assert.Greater(t, CosineSimilarity(a, b), 0.7)
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))
}

func TestOpenAIEmbedder(t *testing.T) {
	var requested []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		requested = append(requested, req.Dimensions)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "sk-test", "", 3)
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Vector{0.1, 0.2, 0.3}, v)

	wrong := NewOpenAIEmbedder(srv.URL, "sk-test", "", 4)
	_, err = wrong.Embed(context.Background(), "hello")
	assert.Error(t, err, "dimension mismatch")

	_, err = e.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, []int{3, 4}, requested, "v3 models get the configured dimension; blank input never reaches the API")
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.Equal(t, "habitability", req.Input)
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{make([]float32, 384)}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/", "all-minilm", 0)
	v, err := e.Embed(context.Background(), "  habitability \n")
	require.NoError(t, err)
	assert.Len(t, v, 384)
}

func TestOllamaEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "", 0)
	assert.Equal(t, 768, e.Dims())
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "ollama error 404")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "model not found", apiErr.Body)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "warranty of", truncate("warranty of habitability", 15), "cut at a word boundary")
	assert.Equal(t, "§§", truncate("§§§", 5), "never split a rune")
}
