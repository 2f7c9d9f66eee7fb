package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/store"
)

// HybridSearch runs hybrid retrieval over a repo's chunks.
func (s *Service) HybridSearch(ctx context.Context, repoName string, req search.Request) (*search.Response, *store.Repo, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	resp, err := s.engine.Hybrid(ctx, repo.SchemaName, repo.EmbeddingModel, req)
	s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	s.metrics.SearchRequests.WithLabelValues("chunks").Inc()
	if err != nil {
		return nil, nil, err
	}
	if resp.Degraded {
		s.metrics.SearchDegraded.Inc()
	}
	return resp, repo, nil
}

// DocSearch runs hybrid retrieval over a repo's documents.
func (s *Service) DocSearch(ctx context.Context, repoName string, req search.Request) (*search.DocResponse, *store.Repo, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	resp, err := s.engine.SearchDocs(ctx, repo.SchemaName, repo.EmbeddingModel, req)
	s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	s.metrics.SearchRequests.WithLabelValues("documents").Inc()
	if err != nil {
		return nil, nil, err
	}
	if resp.Degraded {
		s.metrics.SearchDegraded.Inc()
	}
	return resp, repo, nil
}

// PatternScan runs a literal substring scan over chunk contents.
func (s *Service) PatternScan(ctx context.Context, repoName, pattern string, limit int) ([]search.Result, error) {
	if pattern == "" {
		return nil, cmerrors.InvalidInput("pattern is required")
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	s.metrics.SearchRequests.WithLabelValues("pattern").Inc()
	return s.engine.PatternScan(ctx, repo.SchemaName, pattern, limit)
}

// SymbolLookup finds symbols by fully-qualified or simple name.
func (s *Service) SymbolLookup(ctx context.Context, repoName, name string, limit int) ([]*store.SymbolWithPath, error) {
	if name == "" {
		return nil, cmerrors.InvalidInput("symbol name is required")
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	return s.store.FindSymbols(ctx, repo.SchemaName, name, limit)
}

// SymbolContext is a symbol with its graph neighborhood and summary.
type SymbolContext struct {
	Symbol  *store.SymbolWithPath `json:"symbol"`
	Summary string                `json:"summary,omitempty"`
	Callers []store.EdgeNeighbor  `json:"callers"`
	Callees []store.EdgeNeighbor  `json:"callees"`
}

// GetSymbolContext resolves a symbol by name and assembles its callers,
// callees, and stored summary in one call. Ambiguous names resolve to
// the first match; the caller can disambiguate with the FQN.
func (s *Service) GetSymbolContext(ctx context.Context, repoName, name string) (*SymbolContext, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	syms, err := s.store.FindSymbols(ctx, repo.SchemaName, name, 1)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, cmerrors.InvalidInput(fmt.Sprintf("symbol %q not found in repo %q", name, repo.Name))
	}
	sym := syms[0]

	callers, err := s.store.Callers(ctx, repo.SchemaName, sym.ID, store.EdgeCalls)
	if err != nil {
		return nil, err
	}
	callees, err := s.store.Callees(ctx, repo.SchemaName, sym.ID, store.EdgeCalls)
	if err != nil {
		return nil, err
	}
	out := &SymbolContext{Symbol: sym, Callers: callers, Callees: callees}
	if sum, err := s.store.GetSummary(ctx, repo.SchemaName, store.SummaryTargetSymbol, sym.ID); err == nil && sum != nil {
		out.Summary = sum.Content
	}
	return out, nil
}

func parseEdgeType(raw string) (store.EdgeType, error) {
	if raw == "" {
		return store.EdgeCalls, nil
	}
	et := store.EdgeType(strings.ToUpper(raw))
	switch et {
	case store.EdgeCalls, store.EdgeImports, store.EdgeInherits, store.EdgeImplements:
		return et, nil
	}
	return "", cmerrors.InvalidInput(fmt.Sprintf("unknown edge type %q", raw))
}

// Callers returns symbols with edges into the named symbol.
func (s *Service) Callers(ctx context.Context, repoName, symbolName, edgeType string) ([]store.EdgeNeighbor, error) {
	return s.edgeNeighbors(ctx, repoName, symbolName, edgeType, true)
}

// Callees returns symbols the named symbol has edges out to.
func (s *Service) Callees(ctx context.Context, repoName, symbolName, edgeType string) ([]store.EdgeNeighbor, error) {
	return s.edgeNeighbors(ctx, repoName, symbolName, edgeType, false)
}

func (s *Service) edgeNeighbors(ctx context.Context, repoName, symbolName, edgeType string, incoming bool) ([]store.EdgeNeighbor, error) {
	et, err := parseEdgeType(edgeType)
	if err != nil {
		return nil, err
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	syms, err := s.store.FindSymbols(ctx, repo.SchemaName, symbolName, 1)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, cmerrors.InvalidInput(fmt.Sprintf("symbol %q not found in repo %q", symbolName, repo.Name))
	}
	if incoming {
		return s.store.Callers(ctx, repo.SchemaName, syms[0].ID, et)
	}
	return s.store.Callees(ctx, repo.SchemaName, syms[0].ID, et)
}

// FileOutline returns a file row with its symbols ordered by line.
func (s *Service) FileOutline(ctx context.Context, repoName, path string) (*store.File, []*store.Symbol, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, nil, err
	}
	return s.store.FileOutline(ctx, repo.SchemaName, path)
}

// ListFiles lists indexed files, optionally under a path prefix.
func (s *Service) ListFiles(ctx context.Context, repoName, prefix string, limit int) ([]*store.File, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	return s.store.ListFiles(ctx, repo.SchemaName, prefix, limit)
}

// ReadFile returns current file content from disk, constrained to the
// repo root. Relative traversal out of the root is rejected.
func (s *Service) ReadFile(ctx context.Context, repoName, path string) (string, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return "", err
	}
	abs, err := safeJoin(repo.RootPath, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", cmerrors.InvalidInput(fmt.Sprintf("file %q not found in repo %q", path, repo.Name))
		}
		return "", cmerrors.IOError(path, err)
	}
	return string(data), nil
}

// safeJoin resolves rel under root and rejects escapes.
func safeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", cmerrors.InvalidInput("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", cmerrors.InvalidInput("path must be repo-relative")
	}
	joined := filepath.Join(root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", cmerrors.InvalidInput(fmt.Sprintf("path %q escapes the repo root", rel))
	}
	return joined, nil
}

// ListTags lists the repo's tags with usage counts.
func (s *Service) ListTags(ctx context.Context, repoName string) ([]*store.Tag, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	return s.store.ListTags(ctx, repo.SchemaName)
}

// TagEntity manually attaches a tag (created on first use) to a file,
// chunk, or document.
func (s *Service) TagEntity(ctx context.Context, repoName, tagName, entityType string, entityID int64) error {
	switch entityType {
	case "file", "chunk", "document":
	default:
		return cmerrors.InvalidInput(fmt.Sprintf("unknown entity type %q", entityType))
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return err
	}
	tag, err := s.store.EnsureTag(ctx, repo.SchemaName, tagName, "")
	if err != nil {
		return err
	}
	return s.store.TagEntity(ctx, repo.SchemaName, tag.ID, entityType, entityID, 1.0, store.TagSourceManual)
}
