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

type openaiChat struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func newOpenAIChat(cfg config.LLMConfig, logger *slog.Logger) *openaiChat {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return &openaiChat{
		name:    strings.ToLower(cfg.Provider),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
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

func (o *openaiChat) Name() string { return o.name }

type openaiChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *openaiChat) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(openaiChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", cmerrors.Internal("marshal chat request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", cmerrors.Internal("build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", cmerrors.ProviderTransient(o.name+" unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", cmerrors.ProviderTransient(o.name+" response read", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("%s: HTTP %d", o.name, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", cmerrors.ProviderTransient(msg, nil)
		}
		return "", cmerrors.ProviderFatal(msg, nil)
	}

	var parsed openaiChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", cmerrors.ProviderFatal(o.name+" response decode", err)
	}
	if parsed.Error != nil {
		return "", cmerrors.ProviderFatal(o.name+": "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", cmerrors.ProviderFatal(o.name+" returned no choices", nil)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
