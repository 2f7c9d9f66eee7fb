// Package indexer turns a repository working tree into rows: files,
// symbols, chunks, and edges. A full run walks the tree; incremental
// runs take explicit per-file operations from the watcher or the diff
// sync. Edge resolution runs as a second pass once all symbols for the
// repo are in place.
package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/parser"
	"github.com/codemaphq/codemap/internal/scanner"
	"github.com/codemaphq/codemap/internal/store"
)

// Storage is the slice of the store the indexer writes through.
type Storage interface {
	ApplyFileIngest(ctx context.Context, schema string, ing *store.FileIngest) (int64, error)
	ListFileShas(ctx context.Context, schema string) (map[string]string, error)
	DeleteFileByPath(ctx context.Context, schema, path string) (bool, error)
	ListSymbolsForResolution(ctx context.Context, schema string) ([]store.ResolutionSymbol, error)
	ListUnresolvedEdges(ctx context.Context, schema string) ([]store.UnresolvedEdge, error)
	ResolveEdges(ctx context.Context, schema string, targets map[int64]int64) (int64, error)
	SetIndexState(ctx context.Context, schema, scanCommit string) error
	CollectRepoStats(ctx context.Context, schema string) (*store.RepoStats, error)
	SetRepoStats(ctx context.Context, name string, fileCount, chunkCount int) error
	UpsertDocument(ctx context.Context, schema string, doc *store.Document) (bool, error)
	DeleteDocumentsNotIn(ctx context.Context, schema string, keepPaths []string) (int64, error)
}

// Options tune tree walking.
type Options struct {
	// Ignore is passed to the scanner on top of gitignore rules.
	Ignore []string
	// MaxFileSize caps indexable files; 0 means the scanner default.
	MaxFileSize int64
}

// Stats summarizes one indexing run.
type Stats struct {
	FilesScanned  int           `json:"files_scanned"`
	FilesIndexed  int           `json:"files_indexed"`
	FilesSkipped  int           `json:"files_skipped"`
	FilesDeleted  int           `json:"files_deleted"`
	FilesFailed   int           `json:"files_failed"`
	EdgesResolved int64         `json:"edges_resolved"`
	Symbols       int64         `json:"symbols"`
	Chunks        int64         `json:"chunks"`
	Duration      time.Duration `json:"duration"`
}

type Indexer struct {
	storage Storage
	scanner *scanner.Scanner
	parser  *parser.Parser
	logger  *slog.Logger
	opts    Options
}

func New(storage Storage, logger *slog.Logger, opts Options) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}
	return &Indexer{
		storage: storage,
		scanner: sc,
		parser:  parser.New(logger),
		logger:  logger,
		opts:    opts,
	}, nil
}

// Scanner exposes the shared scanner so the watcher can filter events
// with the same rules the indexer walks with.
func (ix *Indexer) Scanner() *scanner.Scanner { return ix.scanner }

// FullIndex walks the repo root and brings the schema's rows in line
// with the working tree. cancelled is polled between files; a true
// return aborts with a Cancelled error, leaving already-indexed files
// in place. Per-file parse and IO failures are logged and counted but
// do not fail the run.
func (ix *Indexer) FullIndex(ctx context.Context, repo *store.Repo, cancelled func() bool) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	files, err := ix.discover(ctx, repo.RootPath, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	stats.FilesScanned = len(files)

	known, err := ix.storage.ListFileShas(ctx, repo.SchemaName)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if cancelled != nil && cancelled() {
			return stats, cmerrors.Cancelled("full index interrupted")
		}
		if err := ctx.Err(); err != nil {
			return stats, cmerrors.Cancelled("full index interrupted")
		}
		seen[f.Path] = true

		changed, err := ix.indexOne(ctx, repo.SchemaName, f, known[f.Path])
		switch {
		case err != nil:
			stats.FilesFailed++
			ix.logger.Warn("file index failed", "repo", repo.Name, "path", f.Path, "error", err)
		case changed:
			stats.FilesIndexed++
		default:
			stats.FilesSkipped++
		}
	}

	// Files in the schema but gone from disk.
	for path := range known {
		if seen[path] {
			continue
		}
		if _, err := ix.storage.DeleteFileByPath(ctx, repo.SchemaName, path); err != nil {
			ix.logger.Warn("stale file delete failed", "repo", repo.Name, "path", path, "error", err)
			continue
		}
		stats.FilesDeleted++
	}

	resolved, err := ix.ResolveAllEdges(ctx, repo.SchemaName)
	if err != nil {
		return stats, err
	}
	stats.EdgesResolved = resolved

	if err := ix.storage.SetIndexState(ctx, repo.SchemaName, gitHead(repo.RootPath)); err != nil {
		return stats, err
	}

	if rs, err := ix.storage.CollectRepoStats(ctx, repo.SchemaName); err == nil {
		stats.Symbols = rs.Symbols
		stats.Chunks = rs.Chunks
		if err := ix.storage.SetRepoStats(ctx, repo.Name, int(rs.Files), int(rs.Chunks)); err != nil {
			ix.logger.Warn("repo stats update failed", "repo", repo.Name, "error", err)
		}
	}

	stats.Duration = time.Since(start)
	ix.logger.Info("full index done",
		"repo", repo.Name,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"deleted", stats.FilesDeleted,
		"failed", stats.FilesFailed,
		"edges_resolved", stats.EdgesResolved,
		"duration", stats.Duration)
	return stats, nil
}

// indexOne parses and upserts a single file. Returns false when the
// stored sha already matches the content.
func (ix *Indexer) indexOne(ctx context.Context, schema string, f *scanner.FileInfo, knownSHA string) (bool, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return false, cmerrors.IOError(f.Path, err)
	}
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	if sha == knownSHA {
		return false, nil
	}

	res, err := ix.parser.Parse(ctx, f.Path, f.Language, content)
	if err != nil {
		return false, err
	}

	ing := &store.FileIngest{
		Path:     f.Path,
		Language: f.Language,
		SHA:      sha,
		Size:     int64(len(content)),
		Symbols:  res.Symbols,
		Chunks:   parser.MakeChunks(f.Language, content, res.Symbols),
	}
	// File-scope refs (top-level imports) hang off a synthetic module
	// symbol so they persist as edges. Appended after chunking, so no
	// chunk index shifts and the module symbol carries no chunk of its
	// own.
	moduleIdx := -1
	for _, r := range res.Refs {
		idx := r.FromIdx
		if idx < 0 {
			if moduleIdx < 0 {
				ing.Symbols = append(ing.Symbols, moduleSymbol(f.Path, f.Language, content))
				moduleIdx = len(ing.Symbols) - 1
			}
			idx = moduleIdx
		}
		ing.Refs = append(ing.Refs, store.IngestRef{
			FromSymbolIdx: idx,
			ToName:        r.ToName,
			Type:          r.Type,
			Line:          r.Line,
		})
	}
	if _, err := ix.storage.ApplyFileIngest(ctx, schema, ing); err != nil {
		return false, err
	}
	return true, nil
}

// moduleSymbol is the file-level anchor for references that have no
// enclosing definition. FQN is the path, so it stays unique per schema.
func moduleSymbol(path, language string, content []byte) store.Symbol {
	base := filepath.Base(path)
	return store.Symbol{
		FQN:        path,
		SimpleName: strings.TrimSuffix(base, filepath.Ext(base)),
		Kind:       store.SymbolModule,
		StartLine:  1,
		EndLine:    bytes.Count(content, []byte("\n")) + 1,
		Language:   language,
	}
}

// discover runs a scan and drains it into a slice. docs=true returns
// documentation files instead of source.
func (ix *Indexer) discover(ctx context.Context, root string, docs bool) ([]*scanner.FileInfo, error) {
	results, err := ix.scanner.Scan(ctx, scanner.ScanOptions{
		RootDir:          root,
		Ignore:           ix.opts.Ignore,
		RespectGitignore: true,
		MaxFileSize:      ix.opts.MaxFileSize,
		IncludeDocs:      docs,
	})
	if err != nil {
		return nil, cmerrors.IOError(root, err)
	}
	var files []*scanner.FileInfo
	for r := range results {
		if r.Err != nil {
			return nil, cmerrors.IOError(root, r.Err)
		}
		if docs != r.File.IsDoc {
			continue
		}
		files = append(files, r.File)
	}
	return files, nil
}

// gitHead is best effort; repos without git index fine with an empty
// scan commit.
func gitHead(root string) string {
	head, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	ref := string(head)
	if len(ref) > 5 && ref[:5] == "ref: " {
		target, err := os.ReadFile(filepath.Join(root, ".git", trimNewline(ref[5:])))
		if err != nil {
			return ""
		}
		return trimNewline(string(target))
	}
	return trimNewline(ref)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
