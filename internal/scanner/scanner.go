package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codemaphq/codemap/internal/gitignore"
)

// matcherCacheSize bounds the per-directory gitignore matcher cache so
// long-running daemons with many watched repos stay flat on memory.
const matcherCacheSize = 1000

// Scanner discovers indexable files. One Scanner is shared by the
// indexer and every watcher; the matcher cache is safe for concurrent
// use.
type Scanner struct {
	matchers *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}
	return &Scanner{matchers: cache}, nil
}

// Scan walks the root and streams discovered files. The channel closes
// when the walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (<-chan ScanResult, error) {
	root := opts.RootDir
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, results)
	}()
	return results, nil
}

// ShouldIgnore reports whether a repo-relative path would be skipped by
// a scan with the given options. The watcher uses this to drop events
// before they become jobs.
func (s *Scanner) ShouldIgnore(absRoot, relPath string, opts ScanOptions) bool {
	relPath = filepath.ToSlash(relPath)
	for _, part := range strings.Split(relPath, "/") {
		if ignoredName(part, opts.Ignore) {
			return true
		}
	}
	if isSensitive(filepath.Base(relPath)) {
		return true
	}
	if opts.RespectGitignore && s.gitignored(absRoot, relPath) {
		return true
	}
	return false
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts ScanOptions, maxSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if ignoredName(d.Name(), opts.Ignore) {
				return filepath.SkipDir
			}
			if opts.RespectGitignore && s.gitignored(absRoot, relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if ignoredName(d.Name(), opts.Ignore) || isSensitive(d.Name()) {
			return nil
		}
		if opts.RespectGitignore && s.gitignored(absRoot, relPath) {
			return nil
		}

		language := DetectLanguage(relPath)
		isDoc := IsDocPath(relPath)
		if language == "" && !(opts.IncludeDocs && isDoc) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		out := &FileInfo{
			Path:     relPath,
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: language,
			IsDoc:    isDoc,
		}
		select {
		case results <- ScanResult{File: out}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Err: err}:
		default:
		}
	}
}

// gitignored walks the .gitignore chain from the root down to the
// path's directory, last match winning within each file.
func (s *Scanner) gitignored(absRoot, relPath string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	base := ""
	for _, part := range strings.Split(dir, "/") {
		if base == "" {
			base = part
		} else {
			base = base + "/" + part
		}
		if m := s.matcherFor(filepath.Join(absRoot, filepath.FromSlash(base)), base); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached matcher for dir's .gitignore, or nil
// when the directory has none.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.matchers.Get(dir); ok {
		return m
	}
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m := gitignore.New()
	if err := m.AddFromFile(path, base); err != nil {
		return nil
	}
	s.matchers.Add(dir, m)
	return m
}

// InvalidateCache drops cached gitignore matchers. Called by the
// watcher when a .gitignore changes.
func (s *Scanner) InvalidateCache() {
	s.matchers.Purge()
}

func ignoredName(name string, ignore []string) bool {
	for _, ig := range ignore {
		if name == ig {
			return true
		}
	}
	return false
}

// sensitivePatterns are never indexed regardless of gitignore state.
var sensitivePatterns = []string{
	".env", ".env.*", "*.pem", "*.key", "*.p12", "*.pfx",
	"*credentials*", "*secrets*", ".netrc", ".npmrc", ".pypirc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
}

func isSensitive(name string) bool {
	lowered := strings.ToLower(name)
	for _, pattern := range sensitivePatterns {
		switch {
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
			if strings.Contains(lowered, strings.Trim(pattern, "*")) {
				return true
			}
		case strings.HasPrefix(pattern, "*"):
			if strings.HasSuffix(lowered, strings.TrimPrefix(pattern, "*")) {
				return true
			}
		case strings.HasSuffix(pattern, "*"):
			if strings.HasPrefix(lowered, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		default:
			if lowered == pattern {
				return true
			}
		}
	}
	return false
}

// isBinary sniffs the first 512 bytes for a NUL.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
