package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{name: "identical", a: "wrestling-game", b: "wrestling-game", min: 1.0, max: 1.0},
		{name: "identical after normalization", a: "Wrestling_Game", b: "wrestling-game", min: 1.0, max: 1.0},
		{name: "containment floor", a: "yonk-redo-wrestling-game", b: "wrestling-game", min: 0.6, max: 1.0},
		{name: "single typo", a: "pg_go_app", b: "pg_go_apps", min: 0.8, max: 0.99},
		{name: "unrelated", a: "legacy1", b: "wrestling-game", min: 0.0, max: 0.4},
		{name: "empty query", a: "", b: "anything", min: 0.0, max: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NameSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, sim, tt.min)
			assert.LessOrEqual(t, sim, tt.max)
		})
	}
}

func TestNameSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"yonk-redo-wrestling-game", "wrestling-game"},
		{"legacy1", "legacy2"},
		{"a", "abcdef"},
	}
	for _, p := range pairs {
		assert.InDelta(t, NameSimilarity(p[0], p[1]), NameSimilarity(p[1], p[0]), 1e-9)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "levenshtein(%q, %q)", tt.a, tt.b)
	}
}
