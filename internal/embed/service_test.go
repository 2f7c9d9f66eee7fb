package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

type fakeBackend struct {
	mu        sync.Mutex
	dimension int
	pending   []store.PendingText
	rows      []store.EmbeddingRow
	reused    int64
	truncated bool
	dropped   bool
	rebuilt   bool
}

func (f *fakeBackend) PendingEmbeddings(_ context.Context, _ string, _ store.EmbedTarget, limit int) ([]store.PendingText, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	out := f.pending
	return out, nil
}

func (f *fakeBackend) CountPendingEmbeddings(_ context.Context, _ string, _ store.EmbedTarget) (int64, error) {
	return int64(len(f.pending)), nil
}

func (f *fakeBackend) ReuseEmbeddingsByHash(_ context.Context, _ string, _ store.EmbedTarget) (int64, error) {
	return f.reused, nil
}

func (f *fakeBackend) InsertEmbeddings(_ context.Context, _ string, _ store.EmbedTarget, rows []store.EmbeddingRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	// Inserted rows stop being pending.
	done := make(map[int64]bool, len(rows))
	for _, r := range rows {
		done[r.EntityID] = true
	}
	var rest []store.PendingText
	for _, p := range f.pending {
		if !done[p.EntityID] {
			rest = append(rest, p)
		}
	}
	f.pending = rest
	return nil
}

func (f *fakeBackend) TruncateEmbeddings(_ context.Context, _ string, _ store.EmbedTarget, dropIndex bool) error {
	f.truncated = true
	f.dropped = dropIndex
	f.rows = nil
	return nil
}

func (f *fakeBackend) MaintainVectorIndex(_ context.Context, _ string, _ store.EmbedTarget, _ float64) (bool, error) {
	return f.rebuilt, nil
}

func (f *fakeBackend) EmbeddingColumnDimension(_ context.Context, _ string, _ store.EmbedTarget) (int, error) {
	return f.dimension, nil
}

func testCfg(dim int) config.EmbeddingsConfig {
	return config.EmbeddingsConfig{
		Provider:         "static",
		Model:            "test-model",
		Dimension:        dim,
		BatchSize:        64,
		RebuildThreshold: 0.2,
	}
}

func TestEmbedMissingDedupsByHash(t *testing.T) {
	backend := &fakeBackend{
		dimension: 32,
		reused:    3,
		pending: []store.PendingText{
			{EntityID: 1, ContentHash: "aaaa", Content: "def f(): pass"},
			{EntityID: 2, ContentHash: "aaaa", Content: "def f(): pass"},
			{EntityID: 3, ContentHash: "bbbb", Content: "def g(): pass"},
		},
	}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	report, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Embedded)
	assert.Equal(t, int64(3), report.Reused)
	require.Len(t, backend.rows, 3)

	// Rows sharing a hash share the vector; distinct hashes differ.
	byID := make(map[int64]store.EmbeddingRow)
	for _, r := range backend.rows {
		byID[r.EntityID] = r
		assert.Equal(t, "test-model", r.ModelName)
	}
	assert.Equal(t, byID[1].Vector, byID[2].Vector)
	assert.NotEqual(t, byID[1].Vector, byID[3].Vector)
}

func TestEmbedMissingDimensionMismatchColumn(t *testing.T) {
	backend := &fakeBackend{dimension: 768}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	_, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "", nil)
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindDimensionMismatch))
}

func TestEmbedMissingDimensionMismatchProvider(t *testing.T) {
	backend := &fakeBackend{
		dimension: 32,
		pending:   []store.PendingText{{EntityID: 1, ContentHash: "aaaa", Content: "x"}},
	}
	// Provider emits 16-dim vectors against a 32-dim config.
	cfg := testCfg(32)
	svc := NewService(backend, NewStatic(16), cfg, nil)

	_, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "", nil)
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindDimensionMismatch))
}

func TestEmbedMissingModelOverride(t *testing.T) {
	backend := &fakeBackend{
		dimension: 32,
		pending:   []store.PendingText{{EntityID: 1, ContentHash: "aaaa", Content: "x"}},
	}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	_, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "special-model", nil)
	require.NoError(t, err)
	require.Len(t, backend.rows, 1)
	assert.Equal(t, "special-model", backend.rows[0].ModelName)
}

func TestEmbedMissingCancellation(t *testing.T) {
	backend := &fakeBackend{
		dimension: 32,
		pending:   []store.PendingText{{EntityID: 1, ContentHash: "aaaa", Content: "x"}},
	}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	_, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "", func() bool { return true })
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindCancelled))
	assert.Empty(t, backend.rows)
}

func TestEmbedMissingNothingPending(t *testing.T) {
	backend := &fakeBackend{dimension: 32}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	report, err := svc.EmbedMissing(context.Background(), "repo_x", store.TargetChunks, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Embedded)
	assert.Equal(t, 0, report.Batches)
}

func TestReembedTable(t *testing.T) {
	backend := &fakeBackend{dimension: 32}
	svc := NewService(backend, NewStatic(32), testCfg(32), nil)

	require.NoError(t, svc.ReembedTable(context.Background(), "repo_x", store.TargetChunks, true))
	assert.True(t, backend.truncated)
	assert.True(t, backend.dropped)
}
