package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codemaphq/codemap/internal/store"
)

func TestResolveTargets(t *testing.T) {
	symbols := []store.ResolutionSymbol{
		{ID: 1, FQN: "Widget", SimpleName: "Widget", FileID: 10},
		{ID: 2, FQN: "Widget.render", SimpleName: "render", FileID: 10},
		{ID: 3, FQN: "helper", SimpleName: "helper", FileID: 10},
		{ID: 4, FQN: "util.helper", SimpleName: "helper", FileID: 20},
		{ID: 5, FQN: "unique_fn", SimpleName: "unique_fn", FileID: 20},
	}

	tests := []struct {
		name string
		edge store.UnresolvedEdge
		want int64 // 0 = stays unresolved
	}{
		{
			name: "exact fqn wins",
			edge: store.UnresolvedEdge{ID: 100, ToName: "Widget.render", EvidenceFileID: 20},
			want: 2,
		},
		{
			name: "same-file simple name",
			edge: store.UnresolvedEdge{ID: 101, ToName: "helper", EvidenceFileID: 20},
			want: 4,
		},
		{
			name: "globally unique simple name",
			edge: store.UnresolvedEdge{ID: 102, ToName: "unique_fn", EvidenceFileID: 10},
			want: 5,
		},
		{
			name: "ambiguous stays unresolved",
			edge: store.UnresolvedEdge{ID: 103, ToName: "helper", EvidenceFileID: 30},
			want: 0,
		},
		{
			name: "unknown name stays unresolved",
			edge: store.UnresolvedEdge{ID: 104, ToName: "nope", EvidenceFileID: 10},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := resolveTargets([]store.UnresolvedEdge{tt.edge}, symbols)
			if tt.want == 0 {
				assert.Empty(t, targets)
			} else {
				assert.Equal(t, map[int64]int64{tt.edge.ID: tt.want}, targets)
			}
		})
	}
}

func TestResolveTargetsExactFQNBeatsSameFile(t *testing.T) {
	// "helper" exists as an exact FQN and as a same-file simple name of a
	// different symbol; the exact match must win.
	symbols := []store.ResolutionSymbol{
		{ID: 1, FQN: "helper", SimpleName: "helper", FileID: 10},
		{ID: 2, FQN: "Mod.helper", SimpleName: "helper", FileID: 20},
	}
	edges := []store.UnresolvedEdge{{ID: 100, ToName: "helper", EvidenceFileID: 20}}

	targets := resolveTargets(edges, symbols)
	assert.Equal(t, map[int64]int64{100: 1}, targets)
}

func TestParseNameStatus(t *testing.T) {
	out := []byte("A\tnew.go\nM\tchanged.py\nD\tgone.ts\nR100\told.go\tmoved.go\nC75\tsrc.go\tcopy.go\nX\tweird\n")
	ops := parseNameStatus(out)
	assert.Equal(t, []FileOp{
		{Path: "new.go", Op: OpUpsert},
		{Path: "changed.py", Op: OpUpsert},
		{Path: "gone.ts", Op: OpDelete},
		{Path: "old.go", Op: OpDelete},
		{Path: "moved.go", Op: OpUpsert},
		{Path: "copy.go", Op: OpUpsert},
	}, ops)
}

func TestParseNameStatusEmpty(t *testing.T) {
	assert.Empty(t, parseNameStatus(nil))
	assert.Empty(t, parseNameStatus([]byte("\n\n")))
}
