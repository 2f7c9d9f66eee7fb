package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// openaiProvider speaks the /v1/embeddings shape. vLLM serves the same
// endpoint, so the "vllm" provider setting lands here with a different
// base URL and usually no API key.
type openaiProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func newOpenAI(cfg config.EmbeddingsConfig, logger *slog.Logger) *openaiProvider {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return &openaiProvider{
		name:    strings.ToLower(cfg.Provider),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
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

func (p *openaiProvider) Name() string { return p.name }

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *openaiProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(openaiEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, cmerrors.Internal("marshal embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, cmerrors.Internal("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, cmerrors.ProviderTransient(p.name+" unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, cmerrors.ProviderTransient(p.name+" response read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(p.name, resp.StatusCode, data)
	}

	var parsed openaiEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, cmerrors.ProviderFatal(p.name+" response decode", err)
	}
	if parsed.Error != nil {
		return nil, cmerrors.ProviderFatal(p.name+": "+parsed.Error.Message, nil)
	}
	if len(parsed.Data) != len(texts) {
		return nil, cmerrors.ProviderFatal(p.name+" returned wrong vector count", nil)
	}

	// The API may return out of order; index is authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		if len(d.Embedding) == 0 {
			return nil, cmerrors.ProviderFatal(p.name+" returned empty embedding", nil)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
