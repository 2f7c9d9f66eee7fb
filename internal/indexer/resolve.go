package indexer

import (
	"context"

	"github.com/codemaphq/codemap/internal/store"
)

// ResolveAllEdges links dangling edge targets to symbols in three
// steps, cheapest first:
//
//  1. exact FQN match,
//  2. simple name unique within the edge's own file,
//  3. simple name unique across the whole repo.
//
// Anything still ambiguous stays unresolved rather than guessing; a
// later index run retries automatically because unresolved edges keep
// their to_name.
func (ix *Indexer) ResolveAllEdges(ctx context.Context, schema string) (int64, error) {
	edges, err := ix.storage.ListUnresolvedEdges(ctx, schema)
	if err != nil {
		return 0, err
	}
	if len(edges) == 0 {
		return 0, nil
	}
	symbols, err := ix.storage.ListSymbolsForResolution(ctx, schema)
	if err != nil {
		return 0, err
	}

	targets := resolveTargets(edges, symbols)
	if len(targets) == 0 {
		return 0, nil
	}
	return ix.storage.ResolveEdges(ctx, schema, targets)
}

func resolveTargets(edges []store.UnresolvedEdge, symbols []store.ResolutionSymbol) map[int64]int64 {
	byFQN := make(map[string]int64, len(symbols))
	bySimple := make(map[string][]int64)
	byFileSimple := make(map[int64]map[string][]int64)

	for _, s := range symbols {
		if _, dup := byFQN[s.FQN]; !dup {
			byFQN[s.FQN] = s.ID
		}
		bySimple[s.SimpleName] = append(bySimple[s.SimpleName], s.ID)
		perFile := byFileSimple[s.FileID]
		if perFile == nil {
			perFile = make(map[string][]int64)
			byFileSimple[s.FileID] = perFile
		}
		perFile[s.SimpleName] = append(perFile[s.SimpleName], s.ID)
	}

	targets := make(map[int64]int64)
	for _, e := range edges {
		if id, ok := byFQN[e.ToName]; ok {
			targets[e.ID] = id
			continue
		}
		if perFile := byFileSimple[e.EvidenceFileID]; perFile != nil {
			if ids := perFile[e.ToName]; len(ids) == 1 {
				targets[e.ID] = ids[0]
				continue
			}
		}
		if ids := bySimple[e.ToName]; len(ids) == 1 {
			targets[e.ID] = ids[0]
		}
	}
	return targets
}
