package preflight

import (
	"context"
	"fmt"
	"time"
)

const providerProbeTimeout = 15 * time.Second

// CheckEmbeddingProvider probes the embedding endpoint with a one-text
// request. Failure is a warning, not an error: retrieval degrades to
// text-only ranking without embeddings.
func (c *Checker) CheckEmbeddingProvider(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedding_provider", Required: false}
	if c.provider == nil {
		result.Status = StatusWarn
		result.Message = "not configured; search will be text-only"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, providerProbeTimeout)
	defer cancel()
	vecs, err := c.provider.Embed(ctx, c.cfg.Embeddings.Model, []string{"preflight probe"})
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable: %v", c.provider.Name(), err)
		result.Details = "check embeddings.base_url and that the model is pulled"
		return result
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s returned an empty vector", c.provider.Name())
		return result
	}
	if want := c.cfg.Embeddings.Dimension; want > 0 && len(vecs[0]) != want {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("model emits %d dimensions, config says %d", len(vecs[0]), want)
		result.Details = "fix embeddings.dimension or re-embed with the new model"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready, %d dimensions", c.provider.Name(), len(vecs[0]))
	return result
}

// CheckLLMProvider reports whether summary generation is available.
// A short completion probe would waste tokens, so this only checks
// configuration.
func (c *Checker) CheckLLMProvider(_ context.Context) CheckResult {
	result := CheckResult{Name: "llm_provider", Required: false}
	if c.completer == nil {
		result.Status = StatusWarn
		result.Message = "not configured; summaries disabled"
		return result
	}
	result.Status = StatusPass
	result.Message = c.completer.Name() + " configured"
	return result
}
