package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
)

// These tests run against a real PostgreSQL with the pgvector extension.
// Point TEST_DATABASE_DSN at a scratch database to enable them; every
// run works in throwaway schemas and drops them on cleanup.

func testStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("database tests skipped in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	suffix := time.Now().UnixNano()
	cfg := config.DBConfig{
		DSN:           dsn,
		ControlSchema: fmt.Sprintf("cm_test_ctl_%d", suffix),
		SchemaPrefix:  fmt.Sprintf("cm_test_%d_", suffix),
	}
	st, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	t.Cleanup(func() {
		cleanCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rows, err := st.pool.Query(cleanCtx,
			"SELECT nspname FROM pg_namespace WHERE nspname LIKE $1 OR nspname = $2",
			cfg.SchemaPrefix+"%", cfg.ControlSchema)
		if err == nil {
			var schemas []string
			for rows.Next() {
				var name string
				if rows.Scan(&name) == nil {
					schemas = append(schemas, name)
				}
			}
			rows.Close()
			for _, name := range schemas {
				drop := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{name}.Sanitize())
				_, _ = st.pool.Exec(cleanCtx, drop)
			}
		}
		st.Close()
	})
	return st
}

func createTestRepo(t *testing.T, st *Store, name string) *Repo {
	t.Helper()
	ctx := context.Background()
	repo, err := st.CreateRepo(ctx, &Repo{
		Name:               name,
		SchemaName:         st.SchemaPrefix() + name,
		RootPath:           t.TempDir(),
		Enabled:            true,
		EmbeddingModel:     "test-model",
		EmbeddingDimension: 4,
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateRepoSchema(ctx, repo.SchemaName, repo.EmbeddingDimension))
	return repo
}

func TestDBEnqueueDedup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	repo := createTestRepo(t, st, "dedup")

	spec := JobSpec{
		RepoName: repo.Name,
		Type:     JobFullIndex,
		DedupKey: JobFullIndex.DedupKey(repo.Name, ""),
	}
	first, created, err := st.Enqueue(ctx, spec)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := st.Enqueue(ctx, spec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Dedup also holds while the first job is CLAIMED.
	claimed, found, err := st.Claim(ctx, "w1", ClaimOptions{})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.ID, claimed.ID)

	third, created, err := st.Enqueue(ctx, spec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, third.ID)

	// A terminal sibling no longer absorbs enqueues.
	require.NoError(t, st.Complete(ctx, first.ID))
	fresh, created, err := st.Enqueue(ctx, spec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestDBClaimAtomicity(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	repo := createTestRepo(t, st, "race")

	job, created, err := st.Enqueue(ctx, JobSpec{RepoName: repo.Name, Type: JobFullIndex})
	require.NoError(t, err)
	require.True(t, created)

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			got, found, err := st.Claim(ctx, fmt.Sprintf("w%d", id), ClaimOptions{})
			if err != nil {
				errs <- err
				return
			}
			if found {
				if got.ID != job.ID {
					errs <- fmt.Errorf("claimed unexpected job %s", got.ID)
					return
				}
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), wins.Load(), "exactly one worker may claim the job")

	row, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobClaimed, row.Status)
	assert.Equal(t, 1, row.Attempts)
}

func TestDBReleaseStaleRecovery(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	repo := createTestRepo(t, st, "recover")

	job, _, err := st.Enqueue(ctx, JobSpec{RepoName: repo.Name, Type: JobFullIndex})
	require.NoError(t, err)

	// Worker claims and then dies without completing.
	_, found, err := st.Claim(ctx, "dead-worker", ClaimOptions{})
	require.NoError(t, err)
	require.True(t, found)

	released, err := st.ReleaseStale(ctx, 0, "claim expired", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	row, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, row.Status)
	assert.Nil(t, row.ClaimedBy)
	require.NotNil(t, row.RunAfter)

	// Once the backoff elapses a fresh worker finishes the job.
	_, err = st.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET run_after = now() WHERE id = $1", st.controlTable("job_queue")), job.ID)
	require.NoError(t, err)

	reclaimed, found, err := st.Claim(ctx, "fresh-worker", ClaimOptions{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)

	require.NoError(t, st.Complete(ctx, job.ID))
	row, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobDone, row.Status)
}

func pyIngest(path string) *FileIngest {
	base := path[:len(path)-3]
	return &FileIngest{
		Path:     path,
		Language: "python",
		SHA:      fmt.Sprintf("%064x", len(path)),
		Size:     64,
		Symbols: []Symbol{
			{FQN: base + ".run", SimpleName: "run", Kind: SymbolFunction, StartLine: 4, EndLine: 6, Language: "python"},
			{FQN: path, SimpleName: base, Kind: SymbolModule, StartLine: 1, EndLine: 6, Language: "python"},
		},
		Chunks: []IngestChunk{
			{Chunk: Chunk{StartLine: 1, EndLine: 6, Content: "import os\n\ndef run():\n    helper()\n",
				ContentHash: "hash-" + path, Language: "python", Kind: ChunkFileHeader}, SymbolIdx: -1},
		},
		Refs: []IngestRef{
			{FromSymbolIdx: 1, ToName: "os", Type: EdgeImports, Line: 1},
			{FromSymbolIdx: 0, ToName: "helper", Type: EdgeCalls, Line: 5},
			// Out of bounds and nameless refs are dropped, not inserted.
			{FromSymbolIdx: -1, ToName: "stray", Type: EdgeImports, Line: 2},
			{FromSymbolIdx: 0, ToName: "", Type: EdgeCalls, Line: 5},
		},
	}
}

func TestDBSchemaIsolation(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	alpha := createTestRepo(t, st, "alpha")
	beta := createTestRepo(t, st, "beta")

	_, err := st.ApplyFileIngest(ctx, alpha.SchemaName, pyIngest("alpha_mod.py"))
	require.NoError(t, err)
	_, err = st.ApplyFileIngest(ctx, beta.SchemaName, pyIngest("beta_mod.py"))
	require.NoError(t, err)

	// Symbol lookups stay inside their schema.
	hits, err := st.FindSymbols(ctx, alpha.SchemaName, "alpha_mod.run", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha_mod.py", hits[0].Path)

	hits, err = st.FindSymbols(ctx, alpha.SchemaName, "beta_mod.run", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = st.FindSymbols(ctx, beta.SchemaName, "alpha_mod.run", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Module-anchored import edges persist; refs the filter rejects do
	// not.
	edges, err := st.ListUnresolvedEdges(ctx, alpha.SchemaName)
	require.NoError(t, err)
	var names []string
	for _, e := range edges {
		names = append(names, e.ToName)
	}
	assert.ElementsMatch(t, []string{"os", "helper"}, names)

	stats, err := st.CollectRepoStats(ctx, alpha.SchemaName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Files)
	assert.Equal(t, int64(2), stats.Symbols)
	assert.Equal(t, int64(2), stats.Edges)
}
