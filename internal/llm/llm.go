// Package llm provides chat completions for the summary pipeline.
// Ollama speaks its native /api/chat; OpenAI-compatible servers
// (including vLLM) use /v1/chat/completions.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Completer produces a completion for a conversation.
type Completer interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

// New builds the configured completion backend.
func New(cfg config.LLMConfig, logger *slog.Logger) (Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return newOllamaChat(cfg, logger), nil
	case "openai", "vllm":
		return newOpenAIChat(cfg, logger), nil
	default:
		return nil, cmerrors.InvalidInput(fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
}
