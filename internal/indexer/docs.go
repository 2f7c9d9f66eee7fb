package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/parser"
	"github.com/codemaphq/codemap/internal/store"
)

// DocsScan discovers documentation files (markdown, rst, plain text),
// upserts them as documents, and prunes documents whose files are
// gone. Unchanged content hashes leave the row untouched so existing
// document embeddings survive.
func (ix *Indexer) DocsScan(ctx context.Context, repo *store.Repo, cancelled func() bool) (*Stats, error) {
	stats := &Stats{}

	files, err := ix.discover(ctx, repo.RootPath, true)
	if err != nil {
		return nil, err
	}
	stats.FilesScanned = len(files)

	keep := make([]string, 0, len(files))
	for _, f := range files {
		if cancelled != nil && cancelled() {
			return stats, cmerrors.Cancelled("docs scan interrupted")
		}
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			stats.FilesFailed++
			ix.logger.Warn("doc read failed", "repo", repo.Name, "path", f.Path, "error", err)
			continue
		}
		keep = append(keep, f.Path)

		text := string(content)
		title := docTitle(f.Path, text)
		// The hash covers exactly what gets embedded (title + content),
		// so hash-based embedding reuse never pairs documents whose
		// embedded text differs.
		changed, err := ix.storage.UpsertDocument(ctx, repo.SchemaName, &store.Document{
			Path:        f.Path,
			DocType:     docType(f.Path),
			Title:       title,
			Content:     text,
			ContentHash: parser.HashContent(title + " " + text),
		})
		if err != nil {
			stats.FilesFailed++
			ix.logger.Warn("doc upsert failed", "repo", repo.Name, "path", f.Path, "error", err)
			continue
		}
		if changed {
			stats.FilesIndexed++
		} else {
			stats.FilesSkipped++
		}
	}

	pruned, err := ix.storage.DeleteDocumentsNotIn(ctx, repo.SchemaName, keep)
	if err != nil {
		return stats, err
	}
	stats.FilesDeleted = int(pruned)
	return stats, nil
}

func docType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".rst":
		return "rst"
	default:
		return "text"
	}
}

// docTitle is the first markdown heading, or the first non-blank line,
// or the file name.
func docTitle(path, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return filepath.Base(path)
}
