package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

func TestNew(t *testing.T) {
	for _, provider := range []string{"ollama", "openai", "vllm"} {
		c, err := New(config.LLMConfig{Provider: provider}, nil)
		require.NoError(t, err, provider)
		require.NotNil(t, c)
	}
	_, err := New(config.LLMConfig{Provider: "nope"}, nil)
	require.Error(t, err)
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: "  A summary.\n"},
		})
	}))
	defer srv.Close()

	c := newOllamaChat(config.LLMConfig{BaseURL: srv.URL}, nil)
	out, err := c.Complete(context.Background(), "llama3", []Message{
		{Role: "system", Content: "You summarize code."},
		{Role: "user", Content: "def f(): pass"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A summary.", out)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-x", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	c := newOpenAIChat(config.LLMConfig{Provider: "openai", BaseURL: srv.URL, APIKey: "sk-x"}, nil)
	out, err := c.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestCompleteErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newOpenAIChat(config.LLMConfig{Provider: "vllm", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindProviderTransient))

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv2.Close()

	c2 := newOllamaChat(config.LLMConfig{BaseURL: srv2.URL}, nil)
	_, err = c2.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindProviderFatal))
}
