package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/store"
)

const maxTopK = 100

func toSearchHits(results []search.Result) []SearchHit {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Path:        r.Path,
			StartLine:   r.StartLine,
			EndLine:     r.EndLine,
			Language:    r.Language,
			SymbolFQN:   r.SymbolFQN,
			Snippet:     r.Snippet,
			Score:       r.FinalScore,
			VecRank:     r.VecRank,
			FTSRank:     r.FTSRank,
			MatchedTags: r.MatchedTags,
		})
	}
	return hits
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input HybridSearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	if input.TopK > maxTopK {
		input.TopK = maxTopK
	}
	resp, repo, err := s.svc.HybridSearch(ctx, input.Repo, search.Request{
		Query: input.Query,
		TopK:  input.TopK,
		Filters: search.Filters{
			PathGlob:  input.PathGlob,
			Languages: input.Languages,
			TagsAll:   input.TagsAll,
			TagsAny:   input.TagsAny,
		},
		RequireTextMatch: input.RequireTextMatch,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{
		Repo:     repo.Name,
		Results:  toSearchHits(resp.Results),
		Degraded: resp.Degraded,
		TookMS:   resp.TookMS,
	}, nil
}

func (s *Server) handleDocSearch(ctx context.Context, _ *mcp.CallToolRequest, input DocSearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	if input.TopK > maxTopK {
		input.TopK = maxTopK
	}
	resp, repo, err := s.svc.DocSearch(ctx, input.Repo, search.Request{
		Query: input.Query,
		TopK:  input.TopK,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	hits := make([]SearchHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, SearchHit{
			Path:        r.Path,
			Snippet:     r.Snippet,
			Score:       r.FinalScore,
			VecRank:     r.VecRank,
			FTSRank:     r.FTSRank,
			MatchedTags: r.MatchedTags,
		})
	}
	return nil, SearchOutput{
		Repo:     repo.Name,
		Results:  hits,
		Degraded: resp.Degraded,
		TookMS:   resp.TookMS,
	}, nil
}

func (s *Server) handlePatternScan(ctx context.Context, _ *mcp.CallToolRequest, input PatternScanInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Pattern == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("pattern is required")
	}
	results, err := s.svc.PatternScan(ctx, input.Repo, input.Pattern, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toSearchHits(results)}, nil
}

func toSymbolInfo(sym *store.SymbolWithPath) SymbolInfo {
	return SymbolInfo{
		FQN:       sym.FQN,
		Kind:      string(sym.Kind),
		Path:      sym.Path,
		StartLine: sym.StartLine,
		EndLine:   sym.EndLine,
		Signature: sym.Signature,
		Language:  sym.Language,
	}
}

func toNeighbors(edges []store.EdgeNeighbor) []NeighborInfo {
	out := make([]NeighborInfo, 0, len(edges))
	for _, e := range edges {
		out = append(out, NeighborInfo{
			FQN:  e.Symbol.FQN,
			Kind: string(e.Symbol.Kind),
			Path: e.Symbol.Path,
			Edge: string(e.Type),
			Line: e.Line,
		})
	}
	return out
}

func (s *Server) handleSymbolLookup(ctx context.Context, _ *mcp.CallToolRequest, input SymbolLookupInput) (
	*mcp.CallToolResult, SymbolLookupOutput, error,
) {
	if input.Name == "" {
		return nil, SymbolLookupOutput{}, NewInvalidParamsError("name is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	syms, err := s.svc.SymbolLookup(ctx, input.Repo, input.Name, limit)
	if err != nil {
		return nil, SymbolLookupOutput{}, MapError(err)
	}
	out := SymbolLookupOutput{Symbols: make([]SymbolInfo, 0, len(syms))}
	for _, sym := range syms {
		out.Symbols = append(out.Symbols, toSymbolInfo(sym))
	}
	return nil, out, nil
}

func (s *Server) handleSymbolContext(ctx context.Context, _ *mcp.CallToolRequest, input SymbolContextInput) (
	*mcp.CallToolResult, SymbolContextOutput, error,
) {
	if input.Name == "" {
		return nil, SymbolContextOutput{}, NewInvalidParamsError("name is required")
	}
	sc, err := s.svc.GetSymbolContext(ctx, input.Repo, input.Name)
	if err != nil {
		return nil, SymbolContextOutput{}, MapError(err)
	}
	return nil, SymbolContextOutput{
		Symbol:  toSymbolInfo(sc.Symbol),
		Summary: sc.Summary,
		Callers: toNeighbors(sc.Callers),
		Callees: toNeighbors(sc.Callees),
	}, nil
}

func (s *Server) handleCallers(ctx context.Context, _ *mcp.CallToolRequest, input EdgeQueryInput) (
	*mcp.CallToolResult, EdgeQueryOutput, error,
) {
	if input.Name == "" {
		return nil, EdgeQueryOutput{}, NewInvalidParamsError("name is required")
	}
	edges, err := s.svc.Callers(ctx, input.Repo, input.Name, input.EdgeType)
	if err != nil {
		return nil, EdgeQueryOutput{}, MapError(err)
	}
	return nil, EdgeQueryOutput{Neighbors: toNeighbors(edges)}, nil
}

func (s *Server) handleCallees(ctx context.Context, _ *mcp.CallToolRequest, input EdgeQueryInput) (
	*mcp.CallToolResult, EdgeQueryOutput, error,
) {
	if input.Name == "" {
		return nil, EdgeQueryOutput{}, NewInvalidParamsError("name is required")
	}
	edges, err := s.svc.Callees(ctx, input.Repo, input.Name, input.EdgeType)
	if err != nil {
		return nil, EdgeQueryOutput{}, MapError(err)
	}
	return nil, EdgeQueryOutput{Neighbors: toNeighbors(edges)}, nil
}
