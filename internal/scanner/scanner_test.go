package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, s *Scanner, opts ScanOptions) []string {
	t.Helper()
	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)
	var paths []string
	for r := range results {
		require.NoError(t, r.Err)
		paths = append(paths, r.File.Path)
	}
	sort.Strings(paths)
	return paths
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.py", "python"},
		{"app.js", "javascript"},
		{"app.jsx", "javascript"},
		{"index.ts", "typescript"},
		{"view.tsx", "tsx"},
		{"server.go", "go"},
		{"Calculator.java", "java"},
		{"util.c", "c"},
		{"util.h", "c"},
		{"schema.sql", "sql"},
		{"sub/dir/Main.JAVA", "java"},
		{"readme.md", ""},
		{"photo.png", ""},
		{"Makefile", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}

func TestIsDocPath(t *testing.T) {
	assert.True(t, IsDocPath("README.md"))
	assert.True(t, IsDocPath("docs/guide.rst"))
	assert.True(t, IsDocPath("NOTES.txt"))
	assert.False(t, IsDocPath("main.go"))
	assert.False(t, IsDocPath("LICENSE"))
}

func TestScanDiscoversSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/util.py", "def f():\n    pass\n")
	writeFile(t, root, "web/app.tsx", "export {}\n")
	writeFile(t, root, "notes.rtf", "not source")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{RootDir: root})
	assert.Equal(t, []string{"main.go", "pkg/util.py", "web/app.tsx"}, paths)
}

func TestScanIncludeDocs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "README.md", "# readme\n")

	s, err := New()
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, collect(t, s, ScanOptions{RootDir: root}))
	assert.Equal(t, []string{"README.md", "main.go"},
		collect(t, s, ScanOptions{RootDir: root, IncludeDocs: true}))
}

func TestScanIgnoreList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/lib/index.js", "x")
	writeFile(t, root, ".git/hooks/pre-commit.py", "x")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{
		RootDir: root,
		Ignore:  []string{".git", "node_modules"},
	})
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated.go\nbuild/\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated.go", "package main\n")
	writeFile(t, root, "build/out.go", "package main\n")
	writeFile(t, root, "sub/.gitignore", "local.py\n")
	writeFile(t, root, "sub/local.py", "x = 1\n")
	writeFile(t, root, "sub/kept.py", "x = 1\n")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{RootDir: root, RespectGitignore: true})
	assert.Equal(t, []string{"main.go", "sub/kept.py"}, paths)
}

func TestScanSkipsSensitiveAndBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "server.key", "----")
	writeFile(t, root, "credentials.sql", "select 1;")
	writeFile(t, root, "blob.go", "package main\x00\x01\x02")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{RootDir: root})
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestScanSkipsLargeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package main\n")
	// NUL padding would trip the binary check; use spaces.
	big := make([]byte, 2048)
	for i := range big {
		big[i] = ' '
	}
	writeFile(t, root, "big.go", string(big))

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{RootDir: root, MaxFileSize: 1024})
	assert.Equal(t, []string{"small.go"}, paths)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("pkg", string(rune('a'+i%26)), "f.go"), "package f\n")
	}

	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	results, err := s.Scan(ctx, ScanOptions{RootDir: root})
	require.NoError(t, err)
	cancel()

	// Channel must close; draining must not hang.
	for range results {
	}
}

func TestShouldIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")

	s, err := New()
	require.NoError(t, err)

	opts := ScanOptions{RootDir: root, Ignore: []string{"node_modules"}, RespectGitignore: true}
	assert.True(t, s.ShouldIgnore(root, "node_modules/x/index.js", opts))
	assert.True(t, s.ShouldIgnore(root, "server.log", opts))
	assert.True(t, s.ShouldIgnore(root, ".env", opts))
	assert.False(t, s.ShouldIgnore(root, "cmd/main.go", opts))
}

func TestInvalidateCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "skipme.go\n")
	writeFile(t, root, "skipme.go", "package main\n")
	writeFile(t, root, "main.go", "package main\n")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, ScanOptions{RootDir: root, RespectGitignore: true})
	assert.Equal(t, []string{"main.go"}, paths)

	// Loosen the gitignore; the cache must not serve the old matcher.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("# nothing\n"), 0o644))
	s.InvalidateCache()

	paths = collect(t, s, ScanOptions{RootDir: root, RespectGitignore: true})
	assert.Equal(t, []string{"main.go", "skipme.go"}, paths)
}
