package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// WithRetry wraps a provider with exponential backoff + jitter.
// Transient failures (throttling, 5xx, network) retry up to maxRetries
// times; fatal provider errors and context cancellation surface
// immediately.
func WithRetry(p Provider, maxRetries int, logger *slog.Logger) Provider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryProvider{inner: p, maxRetries: maxRetries, logger: logger}
}

type retryProvider struct {
	inner      Provider
	maxRetries int
	logger     *slog.Logger
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var out [][]float32

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 15 * time.Second

	attempt := 0
	op := func() error {
		vecs, err := r.inner.Embed(ctx, model, texts)
		if err == nil {
			out = vecs
			return nil
		}
		if !cmerrors.KindOf(err).Retryable() {
			return backoff.Permanent(err)
		}
		attempt++
		r.logger.Warn("embed batch retry",
			"provider", r.inner.Name(), "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(r.maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return out, nil
}
