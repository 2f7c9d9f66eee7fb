package indexer

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/scanner"
	"github.com/codemaphq/codemap/internal/store"
)

// FileOpKind is what happened to a file.
type FileOpKind string

const (
	OpUpsert FileOpKind = "UPSERT"
	OpDelete FileOpKind = "DELETE"
)

// FileOp is one incremental indexing instruction.
type FileOp struct {
	Path string     `json:"path"`
	Op   FileOpKind `json:"op"`
}

// ReindexFile applies one file operation and re-resolves edges.
func (ix *Indexer) ReindexFile(ctx context.Context, repo *store.Repo, path string, op FileOpKind) (*Stats, error) {
	return ix.ReindexMany(ctx, repo, []FileOp{{Path: path, Op: op}})
}

// ReindexMany applies a batch of file operations in path order, then
// resolves edges once. A delete for an unknown path is a no-op; an
// upsert for a path the scanner would skip (ignored, binary, unknown
// language) falls back to delete so the schema never holds rows the
// walk would not produce.
func (ix *Indexer) ReindexMany(ctx context.Context, repo *store.Repo, ops []FileOp) (*Stats, error) {
	stats := &Stats{}
	scanOpts := scanner.ScanOptions{
		RootDir:          repo.RootPath,
		Ignore:           ix.opts.Ignore,
		RespectGitignore: true,
		MaxFileSize:      ix.opts.MaxFileSize,
	}

	for _, op := range ops {
		rel := filepath.ToSlash(filepath.Clean(op.Path))
		if strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
			stats.FilesFailed++
			ix.logger.Warn("reindex path outside repo", "repo", repo.Name, "path", op.Path)
			continue
		}

		kind := op.Op
		if kind == OpUpsert && !ix.indexable(repo.RootPath, rel, scanOpts) {
			kind = OpDelete
		}

		switch kind {
		case OpUpsert:
			f, err := ix.statFile(repo.RootPath, rel)
			if err != nil {
				// Deleted between event and processing: treat as delete.
				kind = OpDelete
			} else {
				changed, err := ix.indexOne(ctx, repo.SchemaName, f, "")
				if err != nil {
					stats.FilesFailed++
					ix.logger.Warn("reindex failed", "repo", repo.Name, "path", rel, "error", err)
					continue
				}
				if changed {
					stats.FilesIndexed++
				}
				continue
			}
		case OpDelete:
		default:
			return nil, cmerrors.InvalidInput("unknown file op: " + string(op.Op))
		}

		deleted, err := ix.storage.DeleteFileByPath(ctx, repo.SchemaName, rel)
		if err != nil {
			stats.FilesFailed++
			ix.logger.Warn("reindex delete failed", "repo", repo.Name, "path", rel, "error", err)
			continue
		}
		if deleted {
			stats.FilesDeleted++
		}
	}

	resolved, err := ix.ResolveAllEdges(ctx, repo.SchemaName)
	if err != nil {
		return stats, err
	}
	stats.EdgesResolved = resolved
	return stats, nil
}

// SyncFromDiff turns `git diff --name-status base..head` into file
// operations and applies them.
func (ix *Indexer) SyncFromDiff(ctx context.Context, repo *store.Repo, baseRef, headRef string) (*Stats, error) {
	out, err := gitDiffNameStatus(ctx, repo.RootPath, baseRef, headRef)
	if err != nil {
		return nil, err
	}
	ops := parseNameStatus(out)
	if len(ops) == 0 {
		return &Stats{}, nil
	}
	return ix.ReindexMany(ctx, repo, ops)
}

func gitDiffNameStatus(ctx context.Context, root, baseRef, headRef string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", root, "diff", "--name-status", baseRef, headRef)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, cmerrors.IOError(root, err).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// parseNameStatus reads git name-status lines. Renames and copies
// (R/C with score) carry two paths: old becomes a delete, new an
// upsert.
func parseNameStatus(out []byte) []FileOp {
	var ops []FileOp
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		switch fields[0][0] {
		case 'A', 'M', 'T':
			ops = append(ops, FileOp{Path: fields[1], Op: OpUpsert})
		case 'D':
			ops = append(ops, FileOp{Path: fields[1], Op: OpDelete})
		case 'R', 'C':
			if len(fields) >= 3 {
				if fields[0][0] == 'R' {
					ops = append(ops, FileOp{Path: fields[1], Op: OpDelete})
				}
				ops = append(ops, FileOp{Path: fields[2], Op: OpUpsert})
			}
		}
	}
	return ops
}

func (ix *Indexer) indexable(root, rel string, opts scanner.ScanOptions) bool {
	if ix.scanner.ShouldIgnore(root, rel, opts) {
		return false
	}
	return scanner.DetectLanguage(rel) != ""
}

func (ix *Indexer) statFile(root, rel string) (*scanner.FileInfo, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	return &scanner.FileInfo{
		Path:     rel,
		AbsPath:  abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Language: scanner.DetectLanguage(rel),
		IsDoc:    scanner.IsDocPath(rel),
	}, nil
}
