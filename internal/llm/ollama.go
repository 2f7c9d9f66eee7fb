package llm

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

type ollamaChat struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func newOllamaChat(cfg config.LLMConfig, logger *slog.Logger) *ollamaChat {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	return &ollamaChat{
		baseURL: strings.TrimRight(base, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: cfg.Timeout(),
		},
		logger: logger,
	}
}

func (o *ollamaChat) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (o *ollamaChat) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", cmerrors.Internal("marshal chat request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", cmerrors.Internal("build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", cmerrors.ProviderTransient("ollama unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", cmerrors.ProviderTransient("ollama response read", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("ollama: HTTP %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", cmerrors.ProviderTransient(msg, nil)
		}
		return "", cmerrors.ProviderFatal(msg, nil)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", cmerrors.ProviderFatal("ollama response decode", err)
	}
	if parsed.Error != "" {
		return "", cmerrors.ProviderFatal("ollama: "+parsed.Error, nil)
	}
	return strings.TrimSpace(parsed.Message.Content), nil
}
