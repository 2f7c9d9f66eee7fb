package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaProvider speaks Ollama's native /api/embeddings endpoint, one
// prompt per request.
type ollamaProvider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func newOllama(cfg config.EmbeddingsConfig, logger *slog.Logger) *ollamaProvider {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	return &ollamaProvider{
		baseURL: strings.TrimRight(base, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: cfg.Timeout(),
		},
		logger: logger,
	}
}

func (p *ollamaProvider) Name() string { return "ollama" }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (p *ollamaProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embedOne(ctx, model, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (p *ollamaProvider) embedOne(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, cmerrors.Internal("marshal embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, cmerrors.Internal("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, cmerrors.ProviderTransient("ollama unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, cmerrors.ProviderTransient("ollama response read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP("ollama", resp.StatusCode, data)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, cmerrors.ProviderFatal("ollama response decode", err)
	}
	if parsed.Error != "" {
		return nil, cmerrors.ProviderFatal("ollama: "+parsed.Error, nil)
	}
	if len(parsed.Embedding) == 0 {
		return nil, cmerrors.ProviderFatal("ollama returned empty embedding", nil)
	}
	return parsed.Embedding, nil
}

// classifyHTTP maps status codes to the retry taxonomy: throttling and
// server errors retry, everything else is on the request.
func classifyHTTP(provider string, status int, body []byte) error {
	msg := fmt.Sprintf("%s: HTTP %d: %s", provider, status, truncate(string(body), 300))
	if status == http.StatusTooManyRequests || status >= 500 {
		return cmerrors.ProviderTransient(msg, nil)
	}
	return cmerrors.ProviderFatal(msg, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
