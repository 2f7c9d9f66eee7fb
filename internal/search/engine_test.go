package search

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

type fakeBackend struct {
	vec    []store.ChunkHit
	fts    []store.ChunkHit
	vecErr error
	ftsErr error

	docVec []store.DocumentHit
	docFTS []store.DocumentHit

	tags map[int64][]string
	grep []store.ChunkHit

	lastTsquery string
	lastFilters store.SearchFilters
}

func (f *fakeBackend) SearchChunksVector(_ context.Context, _ string, _ pgvector.Vector, _ int, filters store.SearchFilters) ([]store.ChunkHit, error) {
	f.lastFilters = filters
	return f.vec, f.vecErr
}

func (f *fakeBackend) SearchChunksFTS(_ context.Context, _ string, tsquery string, _ int, _ store.SearchFilters) ([]store.ChunkHit, error) {
	f.lastTsquery = tsquery
	return f.fts, f.ftsErr
}

func (f *fakeBackend) SearchDocumentsVector(_ context.Context, _ string, _ pgvector.Vector, _ int) ([]store.DocumentHit, error) {
	return f.docVec, f.vecErr
}

func (f *fakeBackend) SearchDocumentsFTS(_ context.Context, _ string, _ string, _ int) ([]store.DocumentHit, error) {
	return f.docFTS, f.ftsErr
}

func (f *fakeBackend) TagsForEntities(_ context.Context, _ string, _ string, _ []int64) (map[int64][]string, error) {
	return f.tags, nil
}

func (f *fakeBackend) GrepChunks(_ context.Context, _ string, _ string, _ int) ([]store.ChunkHit, error) {
	return f.grep, nil
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, cmerrors.ProviderTransient("connection refused", nil)
}

func chunkHit(id int64, path string, score float64) store.ChunkHit {
	return store.ChunkHit{ChunkID: id, FileID: id, Path: path, Language: "python",
		Kind: store.ChunkSymbol, StartLine: 1, EndLine: 5, Content: "def f(): pass", Score: score}
}

func newEngine(b *fakeBackend) *Engine {
	return New(b, embed.NewStatic(8), config.SearchConfig{}, nil)
}

func TestHybridMergesBothLegs(t *testing.T) {
	b := &fakeBackend{
		vec: []store.ChunkHit{chunkHit(1, "a.py", 0.9), chunkHit(2, "b.py", 0.8)},
		fts: []store.ChunkHit{chunkHit(2, "b.py", 0.5), chunkHit(3, "c.py", 0.2)},
	}
	resp, err := newEngine(b).Hybrid(context.Background(), "s", "m", Request{Query: "parse config"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "parse | config", b.lastTsquery)

	// Min-max within each leg: chunk 1 tops vector, chunk 2 tops FTS.
	assert.Equal(t, int64(1), resp.Results[0].ChunkID)
	assert.InDelta(t, 0.55, resp.Results[0].FinalScore, 1e-9)
	assert.Equal(t, int64(2), resp.Results[1].ChunkID)
	assert.InDelta(t, 0.35, resp.Results[1].FinalScore, 1e-9)
	assert.Equal(t, int64(3), resp.Results[2].ChunkID)
	assert.InDelta(t, 0.0, resp.Results[2].FinalScore, 1e-9)

	second := resp.Results[1]
	assert.Equal(t, 2, second.VecRank)
	assert.Equal(t, 1, second.FTSRank)
	assert.InDelta(t, 0.8, second.VecScore, 1e-9)
	assert.InDelta(t, 0.5, second.FTSScore, 1e-9)
}

func TestHybridDegradesWithoutProvider(t *testing.T) {
	b := &fakeBackend{
		fts: []store.ChunkHit{chunkHit(5, "x.py", 0.7), chunkHit(6, "y.py", 0.1)},
	}
	e := New(b, failingProvider{}, config.SearchConfig{}, nil)
	resp, err := e.Hybrid(context.Background(), "s", "m", Request{Query: "handler"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(5), resp.Results[0].ChunkID)
	assert.Zero(t, resp.Results[0].VecRank)
}

func TestHybridUnavailableWhenBothLegsFail(t *testing.T) {
	b := &fakeBackend{ftsErr: cmerrors.IOError("database", nil)}
	e := New(b, failingProvider{}, config.SearchConfig{}, nil)
	_, err := e.Hybrid(context.Background(), "s", "m", Request{Query: "anything"})
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindRetrievalUnavailable))
}

func TestHybridRequireTextMatch(t *testing.T) {
	b := &fakeBackend{
		vec: []store.ChunkHit{chunkHit(1, "a.py", 0.9), chunkHit(2, "b.py", 0.8)},
		fts: []store.ChunkHit{chunkHit(2, "b.py", 0.5)},
	}
	resp, err := newEngine(b).Hybrid(context.Background(), "s", "m",
		Request{Query: "exact_name", RequireTextMatch: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(2), resp.Results[0].ChunkID)
}

func TestHybridTagMaskAndBoost(t *testing.T) {
	b := &fakeBackend{
		vec: []store.ChunkHit{chunkHit(1, "a.py", 0.9), chunkHit(2, "b.py", 0.8)},
		tags: map[int64][]string{
			1: {"auth", "api"},
			2: {"storage"},
		},
	}
	resp, err := newEngine(b).Hybrid(context.Background(), "s", "m", Request{
		Query:   "login",
		Filters: Filters{TagsAny: []string{"auth"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, int64(1), r.ChunkID)
	assert.Equal(t, []string{"auth"}, r.MatchedTags)
	// Sole survivor: zero spread on both legs, only the tag boost scores.
	assert.InDelta(t, 0.10, r.FinalScore, 1e-9)
}

func TestHybridTagsAllRequiresEvery(t *testing.T) {
	b := &fakeBackend{
		vec: []store.ChunkHit{chunkHit(1, "a.py", 0.9), chunkHit(2, "b.py", 0.8)},
		tags: map[int64][]string{
			1: {"auth", "api"},
			2: {"auth"},
		},
	}
	resp, err := newEngine(b).Hybrid(context.Background(), "s", "m", Request{
		Query:   "login",
		Filters: Filters{TagsAll: []string{"auth", "api"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(1), resp.Results[0].ChunkID)
}

func TestHybridTopK(t *testing.T) {
	b := &fakeBackend{vec: []store.ChunkHit{
		chunkHit(1, "a.py", 0.9), chunkHit(2, "b.py", 0.8), chunkHit(3, "c.py", 0.7),
	}}
	resp, err := newEngine(b).Hybrid(context.Background(), "s", "m",
		Request{Query: "config", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestHybridPathGlobPushdown(t *testing.T) {
	b := &fakeBackend{}
	_, err := newEngine(b).Hybrid(context.Background(), "s", "m", Request{
		Query:   "config",
		Filters: Filters{PathGlob: "src/*.py", Languages: []string{"python"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "src/%.py", b.lastFilters.PathGlob)
	assert.Equal(t, []string{"python"}, b.lastFilters.Languages)
}

func TestSearchDocs(t *testing.T) {
	b := &fakeBackend{
		docVec: []store.DocumentHit{
			{DocumentID: 1, Path: "README.md", Title: "Demo", DocType: "markdown", Content: "intro", Score: 0.9},
		},
		docFTS: []store.DocumentHit{
			{DocumentID: 1, Path: "README.md", Title: "Demo", DocType: "markdown", Content: "intro", Score: 0.4},
			{DocumentID: 2, Path: "docs/install.rst", Title: "Install", DocType: "rst", Content: "steps", Score: 0.2},
		},
	}
	resp, err := newEngine(b).SearchDocs(context.Background(), "s", "m", Request{Query: "install guide"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(1), resp.Results[0].DocumentID)
	assert.Equal(t, "Demo", resp.Results[0].Title)
	assert.Equal(t, 1, resp.Results[0].VecRank)
	assert.Equal(t, 1, resp.Results[0].FTSRank)
}

func TestPatternScan(t *testing.T) {
	fqn := "pkg.helper"
	h := chunkHit(9, "util.py", 0)
	h.SymbolFQN = &fqn
	b := &fakeBackend{grep: []store.ChunkHit{h}}
	results, err := newEngine(b).PatternScan(context.Background(), "s", "ERR_NO_SPACE", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pkg.helper", results[0].SymbolFQN)
	assert.Equal(t, "util.py", results[0].Path)
}

func TestGlobToLike(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"src/*.py", "src/%.py"},
		{"**/test_?.go", "%%/test\\__.go"},
		{"a_b%c", "a\\_b\\%c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GlobToLike(tt.in), tt.in)
	}
}

func TestMinMaxZeroSpread(t *testing.T) {
	norm := minMax([]float64{0.5, 0.5})
	assert.Zero(t, norm(0.5, true))
	norm2 := minMax(nil)
	assert.Zero(t, norm2(0.9, true))
	norm3 := minMax([]float64{0.2, 0.8})
	assert.Zero(t, norm3(0.9, false))
	assert.InDelta(t, 1.0, norm3(0.8, true), 1e-9)
}
