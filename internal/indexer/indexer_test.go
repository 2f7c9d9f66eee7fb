package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/parser"
	"github.com/codemaphq/codemap/internal/store"
)

// fakeStorage keeps ingests in memory so indexing runs against a
// temp dir without a database.
type fakeStorage struct {
	mu         sync.Mutex
	ingests    map[string]*store.FileIngest
	deleted    []string
	symbols    []store.ResolutionSymbol
	edges      []store.UnresolvedEdge
	resolved   map[int64]int64
	docs       map[string]*store.Document
	scanCommit string
	repoFiles  int
	repoChunks int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		ingests:  make(map[string]*store.FileIngest),
		resolved: make(map[int64]int64),
		docs:     make(map[string]*store.Document),
	}
}

func (f *fakeStorage) ApplyFileIngest(_ context.Context, _ string, ing *store.FileIngest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Same filter the real store applies: a ref must point at a symbol
	// of this ingest and carry a target name.
	kept := make([]store.IngestRef, 0, len(ing.Refs))
	for _, ref := range ing.Refs {
		if ref.FromSymbolIdx < 0 || ref.FromSymbolIdx >= len(ing.Symbols) || ref.ToName == "" {
			continue
		}
		kept = append(kept, ref)
	}
	ing.Refs = kept
	f.ingests[ing.Path] = ing
	return int64(len(f.ingests)), nil
}

func (f *fakeStorage) ListFileShas(_ context.Context, _ string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.ingests))
	for p, ing := range f.ingests {
		out[p] = ing.SHA
	}
	return out, nil
}

func (f *fakeStorage) DeleteFileByPath(_ context.Context, _ string, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ingests[path]
	delete(f.ingests, path)
	f.deleted = append(f.deleted, path)
	return ok, nil
}

func (f *fakeStorage) ListSymbolsForResolution(_ context.Context, _ string) ([]store.ResolutionSymbol, error) {
	return f.symbols, nil
}

func (f *fakeStorage) ListUnresolvedEdges(_ context.Context, _ string) ([]store.UnresolvedEdge, error) {
	return f.edges, nil
}

func (f *fakeStorage) ResolveEdges(_ context.Context, _ string, targets map[int64]int64) (int64, error) {
	for k, v := range targets {
		f.resolved[k] = v
	}
	return int64(len(targets)), nil
}

func (f *fakeStorage) SetIndexState(_ context.Context, _ string, scanCommit string) error {
	f.scanCommit = scanCommit
	return nil
}

func (f *fakeStorage) CollectRepoStats(_ context.Context, _ string) (*store.RepoStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := &store.RepoStats{Files: int64(len(f.ingests))}
	for _, ing := range f.ingests {
		rs.Symbols += int64(len(ing.Symbols))
		rs.Chunks += int64(len(ing.Chunks))
	}
	return rs, nil
}

func (f *fakeStorage) SetRepoStats(_ context.Context, _ string, fileCount, chunkCount int) error {
	f.repoFiles, f.repoChunks = fileCount, chunkCount
	return nil
}

func (f *fakeStorage) UpsertDocument(_ context.Context, _ string, doc *store.Document) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.docs[doc.Path]; ok && old.ContentHash == doc.ContentHash {
		return false, nil
	}
	f.docs[doc.Path] = doc
	return true, nil
}

func (f *fakeStorage) DeleteDocumentsNotIn(_ context.Context, _ string, keepPaths []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := make(map[string]bool, len(keepPaths))
	for _, p := range keepPaths {
		keep[p] = true
	}
	var n int64
	for p := range f.docs {
		if !keep[p] {
			delete(f.docs, p)
			n++
		}
	}
	return n, nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testRepo(root string) *store.Repo {
	return &store.Repo{Name: "demo", SchemaName: "repo_demo", RootPath: root}
}

func newTestIndexer(t *testing.T, fs *fakeStorage) *Indexer {
	t.Helper()
	ix, err := New(fs, nil, Options{Ignore: []string{".git", "node_modules"}})
	require.NoError(t, err)
	return ix
}

func TestFullIndex(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":      "def main():\n    helper()\n\ndef helper():\n    pass\n",
		"pkg/app.go":   "package app\n\nfunc Run() {}\n",
		"README.md":    "# demo\n",
		"ignored.bin":  "\x00\x01",
		".gitignore":   "skipped.py\n",
		"skipped.py":   "x = 1\n",
		"vendor.woff2": "not code",
	})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	stats, err := ix.FullIndex(context.Background(), testRepo(root), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)
	require.Contains(t, fs.ingests, "main.py")
	require.Contains(t, fs.ingests, "pkg/app.go")
	assert.NotContains(t, fs.ingests, "skipped.py")
	assert.NotContains(t, fs.ingests, "README.md")

	py := fs.ingests["main.py"]
	assert.Len(t, py.Symbols, 2)
	assert.NotEmpty(t, py.Chunks)
	assert.Len(t, py.SHA, 64)
	// main() calls helper().
	var sawCall bool
	for _, r := range py.Refs {
		if r.ToName == "helper" && r.Type == store.EdgeCalls {
			sawCall = true
		}
	}
	assert.True(t, sawCall)

	assert.Equal(t, 2, fs.repoFiles)
}

func TestFileScopeImportsAnchorToModuleSymbol(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/main.py": "import os\nfrom collections import OrderedDict\n\ndef main():\n    pass\n",
		"plain.py":    "def noop():\n    pass\n",
	})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	_, err := ix.FullIndex(context.Background(), testRepo(root), nil)
	require.NoError(t, err)

	ing := fs.ingests["pkg/main.py"]
	require.NotNil(t, ing)

	moduleIdx := -1
	for i, sym := range ing.Symbols {
		if sym.Kind == store.SymbolModule {
			moduleIdx = i
		}
	}
	require.GreaterOrEqual(t, moduleIdx, 0, "top-level imports need a module symbol to hang off")

	mod := ing.Symbols[moduleIdx]
	assert.Equal(t, "pkg/main.py", mod.FQN)
	assert.Equal(t, "main", mod.SimpleName)
	assert.Equal(t, 1, mod.StartLine)
	assert.GreaterOrEqual(t, mod.EndLine, 5)

	var imports []string
	for _, ref := range ing.Refs {
		if ref.Type == store.EdgeImports && ref.FromSymbolIdx == moduleIdx {
			imports = append(imports, ref.ToName)
		}
	}
	assert.ElementsMatch(t, []string{"os", "collections"}, imports)

	// The module symbol anchors refs only; it owns no chunk.
	for _, ch := range ing.Chunks {
		assert.NotEqual(t, moduleIdx, ch.SymbolIdx)
	}

	// Files without file-scope refs get no module symbol.
	for _, sym := range fs.ingests["plain.py"].Symbols {
		assert.NotEqual(t, store.SymbolModule, sym.Kind)
	}
}

func TestFullIndexShaSkipAndStaleDelete(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)
	ctx := context.Background()
	repo := testRepo(root)

	_, err := ix.FullIndex(ctx, repo, nil)
	require.NoError(t, err)

	// Second run: nothing changed, everything skips.
	stats, err := ix.FullIndex(ctx, repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)

	// Remove one file and touch the other.
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 3\n"), 0o644))

	stats, err = ix.FullIndex(ctx, repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.NotContains(t, fs.ingests, "b.py")
}

func TestFullIndexCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	_, err := ix.FullIndex(context.Background(), testRepo(root), func() bool { return true })
	require.Error(t, err)
	assert.True(t, cmerrors.Is(err, cmerrors.KindCancelled))
	assert.Empty(t, fs.ingests)
}

func TestFullIndexContinuesPastBadFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not bind root")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok.py": "x = 1\n",
	})
	// Unreadable file: present in the walk, fails on open.
	bad := filepath.Join(root, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("y = 2\n"), 0o644))
	require.NoError(t, os.Chmod(bad, 0o000))
	t.Cleanup(func() { _ = os.Chmod(bad, 0o644) })

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	stats, err := ix.FullIndex(context.Background(), testRepo(root), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Contains(t, fs.ingests, "ok.py")
}

func TestReindexMany(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.py": "x = 1\n",
		"edit.py": "y = 2\n",
	})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)
	ctx := context.Background()
	repo := testRepo(root)

	_, err := ix.FullIndex(ctx, repo, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "edit.py"), []byte("y = 3\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "keep.py")))

	stats, err := ix.ReindexMany(ctx, repo, []FileOp{
		{Path: "edit.py", Op: OpUpsert},
		{Path: "keep.py", Op: OpDelete},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.NotContains(t, fs.ingests, "keep.py")
	assert.NotEmpty(t, fs.ingests["edit.py"].SHA)
}

func TestReindexUpsertOfIgnoredPathDeletes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "generated.py\n",
	})

	fs := newFakeStorage()
	fs.ingests["generated.py"] = &store.FileIngest{Path: "generated.py", SHA: "old"}

	ix := newTestIndexer(t, fs)
	writeTree(t, root, map[string]string{"generated.py": "x = 1\n"})

	stats, err := ix.ReindexMany(context.Background(), testRepo(root), []FileOp{
		{Path: "generated.py", Op: OpUpsert},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.NotContains(t, fs.ingests, "generated.py")
}

func TestReindexRejectsEscapingPath(t *testing.T) {
	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	stats, err := ix.ReindexMany(context.Background(), testRepo(t.TempDir()), []FileOp{
		{Path: "../outside.py", Op: OpUpsert},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
}

func TestDocsScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":     "# Demo Project\n\nSome prose.\n",
		"docs/guide.md": "installation notes\n",
		"main.py":       "x = 1\n",
	})

	fs := newFakeStorage()
	fs.docs["stale.md"] = &store.Document{Path: "stale.md", ContentHash: "dead"}

	ix := newTestIndexer(t, fs)
	repo := testRepo(root)

	stats, err := ix.DocsScan(context.Background(), repo, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesDeleted)
	require.Contains(t, fs.docs, "README.md")
	assert.Equal(t, "Demo Project", fs.docs["README.md"].Title)
	assert.Equal(t, "markdown", fs.docs["README.md"].DocType)
	assert.Equal(t, "installation notes", fs.docs["docs/guide.md"].Title)
	assert.NotContains(t, fs.docs, "stale.md")
	assert.NotContains(t, fs.docs, "main.py")

	// Unchanged second pass skips.
	stats, err = ix.DocsScan(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)
}

func TestDocContentHashCoversEmbeddedText(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md": "# Demo Project\n\nSome prose.\n",
	})

	fs := newFakeStorage()
	ix := newTestIndexer(t, fs)

	_, err := ix.DocsScan(context.Background(), testRepo(root), nil)
	require.NoError(t, err)

	doc := fs.docs["README.md"]
	require.NotNil(t, doc)

	// Document embeddings cover title plus content, so the dedup hash
	// has to cover both: a content-only hash would keep a stale vector
	// when only the title differs between two documents.
	assert.Equal(t, parser.HashContent(doc.Title+" "+doc.Content), doc.ContentHash)
	assert.NotEqual(t, parser.HashContent(doc.Content), doc.ContentHash)
}
