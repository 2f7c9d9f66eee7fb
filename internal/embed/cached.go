package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WithCache memoizes vectors by (model, text hash). The database dedups
// by content hash across a whole table; this cache covers the window
// within one process where the same text comes through twice before
// its row lands (query embedding for repeated searches, retries).
func WithCache(p Provider, size int) (Provider, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &cachedProvider{inner: p, cache: cache}, nil
}

type cachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

func (c *cachedProvider) Name() string { return c.inner.Name() }

func (c *cachedProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(model, text)); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, model, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.cache.Add(cacheKey(model, missTexts[j]), vec)
	}
	return out, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}
