package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/store"
)

func TestToSearchHits(t *testing.T) {
	hits := toSearchHits([]search.Result{
		{
			Path:        "src/auth/login.py",
			StartLine:   10,
			EndLine:     42,
			Language:    "python",
			SymbolFQN:   "auth.login",
			Snippet:     "def login(): ...",
			FinalScore:  0.82,
			VecRank:     1,
			FTSRank:     3,
			MatchedTags: []string{"auth"},
		},
	})
	require.Len(t, hits, 1)
	assert.Equal(t, "src/auth/login.py", hits[0].Path)
	assert.Equal(t, 0.82, hits[0].Score)
	assert.Equal(t, 1, hits[0].VecRank)
	assert.Equal(t, []string{"auth"}, hits[0].MatchedTags)
}

func TestToNeighbors(t *testing.T) {
	neighbors := toNeighbors([]store.EdgeNeighbor{
		{
			Symbol: store.SymbolWithPath{
				Symbol: store.Symbol{FQN: "auth.Session.refresh", Kind: "method"},
				Path:   "src/auth/session.py",
			},
			Type: store.EdgeCalls,
			Line: 88,
		},
	})
	require.Len(t, neighbors, 1)
	assert.Equal(t, "auth.Session.refresh", neighbors[0].FQN)
	assert.Equal(t, "CALLS", neighbors[0].Edge)
	assert.Equal(t, 88, neighbors[0].Line)
}

func TestToSymbolInfo(t *testing.T) {
	info := toSymbolInfo(&store.SymbolWithPath{
		Symbol: store.Symbol{
			FQN:       "billing.Invoice.total",
			Kind:      "method",
			StartLine: 12,
			EndLine:   30,
			Signature: "def total(self) -> Decimal",
			Language:  "python",
		},
		Path: "src/billing/invoice.py",
	})
	assert.Equal(t, "billing.Invoice.total", info.FQN)
	assert.Equal(t, "src/billing/invoice.py", info.Path)
	assert.Equal(t, "method", info.Kind)
}
