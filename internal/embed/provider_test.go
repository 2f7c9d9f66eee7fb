package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{provider: "ollama", wantName: "ollama"},
		{provider: "openai", wantName: "openai"},
		{provider: "vllm", wantName: "vllm"},
		{provider: "static", wantName: "static"},
		{provider: "mystery", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(config.EmbeddingsConfig{Provider: tt.provider, Dimension: 8}, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestStaticDeterministic(t *testing.T) {
	s := NewStatic(64)
	ctx := context.Background()

	a, err := s.Embed(ctx, "m", []string{"hello", "world", "hello"})
	require.NoError(t, err)
	require.Len(t, a, 3)
	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[2])
	assert.NotEqual(t, a[0], a[1])

	b, err := s.Embed(ctx, "m", []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])

	// Unit length.
	var norm float64
	for _, v := range a[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		vec := []float32{1, 2, 3}
		if req.Prompt == "b" {
			vec = []float32{4, 5, 6}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: vec})
	}))
	defer srv.Close()

	p := newOllama(config.EmbeddingsConfig{BaseURL: srv.URL}, nil)
	vecs, err := p.Embed(context.Background(), "nomic-embed-text", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, vecs)
}

func TestOllamaProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newOllama(config.EmbeddingsConfig{BaseURL: srv.URL}, nil)
	_, err := p.Embed(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindProviderTransient))
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)
		// Out-of-order response; index must reorder.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[4,5]},{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	p := newOpenAI(config.EmbeddingsConfig{Provider: "openai", BaseURL: srv.URL, APIKey: "sk-test"}, nil)
	vecs, err := p.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {4, 5}}, vecs)
}

func TestOpenAIProviderBadRequestIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newOpenAI(config.EmbeddingsConfig{Provider: "vllm", BaseURL: srv.URL}, nil)
	_, err := p.Embed(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindProviderFatal))
}

func TestRetryRecoversFromTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1}})
	}))
	defer srv.Close()

	p := WithRetry(newOllama(config.EmbeddingsConfig{BaseURL: srv.URL}, nil), 5, nil)
	vecs, err := p.Embed(context.Background(), "m", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, vecs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryStopsOnFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	p := WithRetry(newOllama(config.EmbeddingsConfig{BaseURL: srv.URL}, nil), 5, nil)
	_, err := p.Embed(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{7}})
	}))
	defer srv.Close()

	p, err := WithCache(newOllama(config.EmbeddingsConfig{BaseURL: srv.URL}, nil), 16)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Embed(ctx, "m", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// Second round: both cached, no new calls.
	vecs, err := p.Embed(ctx, "m", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{7}, {7}}, vecs)
	assert.Equal(t, int32(2), calls.Load())

	// Different model misses.
	_, err = p.Embed(ctx, "other", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
