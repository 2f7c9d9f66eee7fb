package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// Default candidate widths and weights when the config leaves them zero.
const (
	defaultKVector = 30
	defaultKFTS    = 30
	defaultTopK    = 12
	snippetCap     = 4000
)

// Engine runs hybrid retrieval against one repository schema.
type Engine struct {
	backend  Backend
	provider embed.Provider
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// New builds an engine. The provider may be nil; every search then
// runs full-text only and reports degraded.
func New(backend Backend, provider embed.Provider, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backend: backend, provider: provider, cfg: cfg, logger: logger}
}

func (e *Engine) weights() (vec, fts, tag float64) {
	vec, fts, tag = e.cfg.VectorWeight, e.cfg.FTSWeight, e.cfg.TagWeight
	if vec == 0 && fts == 0 && tag == 0 {
		return 0.55, 0.35, 0.10
	}
	return vec, fts, tag
}

func (e *Engine) kVector() int {
	if e.cfg.KVector > 0 {
		return e.cfg.KVector
	}
	return defaultKVector
}

func (e *Engine) kFTS() int {
	if e.cfg.KFTS > 0 {
		return e.cfg.KFTS
	}
	return defaultKFTS
}

func (e *Engine) topK(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.cfg.DefaultTopK > 0 {
		return e.cfg.DefaultTopK
	}
	return defaultTopK
}

// embedQuery runs the query through the chunk embedding provider.
func (e *Engine) embedQuery(ctx context.Context, model, query string) (pgvector.Vector, error) {
	if e.provider == nil {
		return pgvector.Vector{}, cmerrors.ProviderFatal("no embedding provider configured", nil)
	}
	vecs, err := e.provider.Embed(ctx, model, []string{query})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(vecs) != 1 {
		return pgvector.Vector{}, cmerrors.ProviderFatal("provider returned wrong vector count", nil)
	}
	return pgvector.NewVector(vecs[0]), nil
}

// candidate accumulates both legs for one entity before scoring.
type candidate struct {
	vecRank  int
	vecScore float64
	ftsRank  int
	ftsScore float64
}

// Hybrid runs the chunk search pipeline: both legs concurrently, tag
// mask and boost, min-max merge, top-k. The model names the embedding
// model for the query vector; empty uses the provider default upstream.
func (e *Engine) Hybrid(ctx context.Context, schema, model string, req Request) (*Response, error) {
	start := time.Now()
	filters := store.SearchFilters{
		PathGlob:  GlobToLike(req.Filters.PathGlob),
		Languages: req.Filters.Languages,
	}
	tsquery := store.BuildOrTsquery(req.Query)

	var (
		vecHits, ftsHits []store.ChunkHit
		vecErr, ftsErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qv, err := e.embedQuery(gctx, model, req.Query)
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits, vecErr = e.backend.SearchChunksVector(gctx, schema, qv, e.kVector(), filters)
		return nil
	})
	g.Go(func() error {
		ftsHits, ftsErr = e.backend.SearchChunksFTS(gctx, schema, tsquery, e.kFTS(), filters)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && ftsErr != nil {
		return nil, cmerrors.RetrievalUnavailable(errors.Join(vecErr, ftsErr))
	}
	degraded := vecErr != nil
	if degraded {
		e.logger.Warn("vector leg unavailable, serving full-text only",
			"schema", schema, "error", vecErr)
	}
	if ftsErr != nil {
		e.logger.Warn("full-text leg failed, serving vector only",
			"schema", schema, "error", ftsErr)
	}

	cands := make(map[int64]*candidate)
	byID := make(map[int64]store.ChunkHit)
	for i, h := range vecHits {
		byID[h.ChunkID] = h
		cands[h.ChunkID] = &candidate{vecRank: i + 1, vecScore: h.Score}
	}
	for i, h := range ftsHits {
		c, ok := cands[h.ChunkID]
		if !ok {
			byID[h.ChunkID] = h
			c = &candidate{}
			cands[h.ChunkID] = c
		}
		c.ftsRank = i + 1
		c.ftsScore = h.Score
	}

	if req.RequireTextMatch {
		for id, c := range cands {
			if c.ftsRank == 0 {
				delete(cands, id)
				delete(byID, id)
			}
		}
	}

	matched, err := e.applyTagFilters(ctx, schema, "chunk", req.Filters, cands)
	if err != nil {
		return nil, err
	}

	wVec, wFTS, wTag := e.weights()
	normVec := minMax(collect(cands, func(c *candidate) (float64, bool) { return c.vecScore, c.vecRank > 0 }))
	normFTS := minMax(collect(cands, func(c *candidate) (float64, bool) { return c.ftsScore, c.ftsRank > 0 }))

	results := make([]Result, 0, len(cands))
	for id, c := range cands {
		h := byID[id]
		tagBoost := 0.0
		if len(matched[id]) > 0 {
			tagBoost = 1.0
		}
		r := Result{
			ChunkID:     h.ChunkID,
			FileID:      h.FileID,
			Path:        h.Path,
			Language:    h.Language,
			Kind:        string(h.Kind),
			StartLine:   h.StartLine,
			EndLine:     h.EndLine,
			Snippet:     snippet(h.Content),
			VecRank:     c.vecRank,
			VecScore:    c.vecScore,
			FTSRank:     c.ftsRank,
			FTSScore:    c.ftsScore,
			MatchedTags: matched[id],
			FinalScore:  wVec*normVec(c.vecScore, c.vecRank > 0) + wFTS*normFTS(c.ftsScore, c.ftsRank > 0) + wTag*tagBoost,
		}
		if h.SymbolFQN != nil {
			r.SymbolFQN = *h.SymbolFQN
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if k := e.topK(req.TopK); len(results) > k {
		results = results[:k]
	}
	return &Response{
		Results:  results,
		Degraded: degraded,
		TookMS:   time.Since(start).Milliseconds(),
	}, nil
}

// SearchDocs mirrors Hybrid against documents and their embeddings.
func (e *Engine) SearchDocs(ctx context.Context, schema, model string, req Request) (*DocResponse, error) {
	start := time.Now()
	tsquery := store.BuildOrTsquery(req.Query)

	var (
		vecHits, ftsHits []store.DocumentHit
		vecErr, ftsErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qv, err := e.embedQuery(gctx, model, req.Query)
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits, vecErr = e.backend.SearchDocumentsVector(gctx, schema, qv, e.kVector())
		return nil
	})
	g.Go(func() error {
		ftsHits, ftsErr = e.backend.SearchDocumentsFTS(gctx, schema, tsquery, e.kFTS())
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && ftsErr != nil {
		return nil, cmerrors.RetrievalUnavailable(errors.Join(vecErr, ftsErr))
	}
	degraded := vecErr != nil
	if degraded {
		e.logger.Warn("vector leg unavailable, serving full-text only",
			"schema", schema, "error", vecErr)
	}

	cands := make(map[int64]*candidate)
	byID := make(map[int64]store.DocumentHit)
	for i, h := range vecHits {
		byID[h.DocumentID] = h
		cands[h.DocumentID] = &candidate{vecRank: i + 1, vecScore: h.Score}
	}
	for i, h := range ftsHits {
		c, ok := cands[h.DocumentID]
		if !ok {
			byID[h.DocumentID] = h
			c = &candidate{}
			cands[h.DocumentID] = c
		}
		c.ftsRank = i + 1
		c.ftsScore = h.Score
	}

	if req.RequireTextMatch {
		for id, c := range cands {
			if c.ftsRank == 0 {
				delete(cands, id)
				delete(byID, id)
			}
		}
	}

	matched, err := e.applyTagFilters(ctx, schema, "document", req.Filters, cands)
	if err != nil {
		return nil, err
	}

	wVec, wFTS, wTag := e.weights()
	normVec := minMax(collect(cands, func(c *candidate) (float64, bool) { return c.vecScore, c.vecRank > 0 }))
	normFTS := minMax(collect(cands, func(c *candidate) (float64, bool) { return c.ftsScore, c.ftsRank > 0 }))

	results := make([]DocResult, 0, len(cands))
	for id, c := range cands {
		h := byID[id]
		tagBoost := 0.0
		if len(matched[id]) > 0 {
			tagBoost = 1.0
		}
		results = append(results, DocResult{
			DocumentID:  h.DocumentID,
			Path:        h.Path,
			Title:       h.Title,
			DocType:     h.DocType,
			Snippet:     snippet(h.Content),
			VecRank:     c.vecRank,
			VecScore:    c.vecScore,
			FTSRank:     c.ftsRank,
			FTSScore:    c.ftsScore,
			MatchedTags: matched[id],
			FinalScore:  wVec*normVec(c.vecScore, c.vecRank > 0) + wFTS*normFTS(c.ftsScore, c.ftsRank > 0) + wTag*tagBoost,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if k := e.topK(req.TopK); len(results) > k {
		results = results[:k]
	}
	return &DocResponse{
		Results:  results,
		Degraded: degraded,
		TookMS:   time.Since(start).Milliseconds(),
	}, nil
}

// PatternScan is the exact-substring fallback for queries that FTS
// stemming or tokenizing mangles.
func (e *Engine) PatternScan(ctx context.Context, schema, pattern string, limit int) ([]Result, error) {
	hits, err := e.backend.GrepChunks(ctx, schema, pattern, limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			ChunkID:   h.ChunkID,
			FileID:    h.FileID,
			Path:      h.Path,
			Language:  h.Language,
			Kind:      string(h.Kind),
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Snippet:   snippet(h.Content),
		}
		if h.SymbolFQN != nil {
			r.SymbolFQN = *h.SymbolFQN
		}
		results = append(results, r)
	}
	return results, nil
}

// applyTagFilters drops candidates failing the tags_all/tags_any mask
// and returns the requested tags each surviving candidate matched.
// With no tag filters it is a no-op and fetches nothing.
func (e *Engine) applyTagFilters(ctx context.Context, schema, entityType string, f Filters, cands map[int64]*candidate) (map[int64][]string, error) {
	if len(f.TagsAll) == 0 && len(f.TagsAny) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	tags, err := e.backend.TagsForEntities(ctx, schema, entityType, ids)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(f.TagsAll)+len(f.TagsAny))
	for _, t := range f.TagsAll {
		requested[t] = true
	}
	for _, t := range f.TagsAny {
		requested[t] = true
	}

	matched := make(map[int64][]string)
	for id := range cands {
		have := make(map[string]bool, len(tags[id]))
		for _, t := range tags[id] {
			have[t] = true
		}
		keep := true
		for _, t := range f.TagsAll {
			if !have[t] {
				keep = false
				break
			}
		}
		if keep && len(f.TagsAny) > 0 {
			any := false
			for _, t := range f.TagsAny {
				if have[t] {
					any = true
					break
				}
			}
			keep = any
		}
		if !keep {
			delete(cands, id)
			continue
		}
		for _, t := range tags[id] {
			if requested[t] {
				matched[id] = append(matched[id], t)
			}
		}
		sort.Strings(matched[id])
	}
	return matched, nil
}

// collect gathers the leg scores present among the candidates.
func collect(cands map[int64]*candidate, get func(*candidate) (float64, bool)) []float64 {
	var scores []float64
	for _, c := range cands {
		if s, ok := get(c); ok {
			scores = append(scores, s)
		}
	}
	return scores
}

// minMax returns a normalizer over the observed score range. Absent
// leg scores normalize to 0, as does any score when the spread is
// zero: with one candidate there is nothing to rank against.
func minMax(scores []float64) func(score float64, present bool) float64 {
	if len(scores) == 0 {
		return func(float64, bool) float64 { return 0 }
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	spread := hi - lo
	return func(score float64, present bool) float64 {
		if !present || spread == 0 {
			return 0
		}
		return (score - lo) / spread
	}
}

// GlobToLike translates a shell-style glob into a SQL LIKE pattern:
// '*' becomes '%', '?' becomes '_', and literal LIKE metacharacters
// are backslash-escaped. Empty stays empty (no filter).
func GlobToLike(glob string) string {
	if glob == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func snippet(content string) string {
	if len(content) <= snippetCap {
		return content
	}
	return content[:snippetCap]
}
