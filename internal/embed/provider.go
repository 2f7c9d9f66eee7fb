// Package embed turns chunk, document, and summary text into vectors.
// Providers speak either Ollama's native API or the OpenAI embeddings
// shape (which also covers vLLM); the service layer owns batching,
// hash dedup, and vector index upkeep.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// Provider computes embeddings for a batch of texts. Implementations
// must return one vector per input, in order.
type Provider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.EmbeddingsConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return newOllama(cfg, logger), nil
	case "openai", "vllm":
		return newOpenAI(cfg, logger), nil
	case "static":
		return NewStatic(cfg.Dimension), nil
	default:
		return nil, cmerrors.InvalidInput(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider))
	}
}
