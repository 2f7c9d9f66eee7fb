package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/store"
)

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "repos", "demo")

	got, err := safeJoin(root, "src/main.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.py"), got)

	_, err = safeJoin(root, "../other/secret.txt")
	require.Error(t, err)

	_, err = safeJoin(root, "src/../../escape.py")
	require.Error(t, err)

	_, err = safeJoin(root, "/etc/passwd")
	require.Error(t, err)

	_, err = safeJoin(root, "")
	require.Error(t, err)
}

func TestParseEdgeType(t *testing.T) {
	et, err := parseEdgeType("")
	require.NoError(t, err)
	assert.Equal(t, store.EdgeCalls, et)

	et, err = parseEdgeType("imports")
	require.NoError(t, err)
	assert.Equal(t, store.EdgeImports, et)

	_, err = parseEdgeType("links")
	require.Error(t, err)
}

func TestParseEmbedTarget(t *testing.T) {
	target, err := parseEmbedTarget("chunks")
	require.NoError(t, err)
	assert.Equal(t, store.TargetChunks, target)

	target, err = parseEmbedTarget("Summaries")
	require.NoError(t, err)
	assert.Equal(t, store.TargetSummaries, target)

	_, err = parseEmbedTarget("vectors")
	require.Error(t, err)
}

func TestBoolOr(t *testing.T) {
	yes := true
	assert.True(t, boolOr(&yes, false))
	assert.True(t, boolOr(nil, true))
	assert.False(t, boolOr(nil, false))
}

func TestGetCapabilities(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.Dimension = 768
	cfg.LLM.Provider = ""

	svc := New(nil, nil, cfg, nil, nil, "1.2.3")
	caps := svc.GetCapabilities()
	assert.Equal(t, "1.2.3", caps.Version)
	assert.Equal(t, "ollama", caps.EmbeddingProvider)
	assert.False(t, caps.SummariesEnabled)
	assert.Contains(t, caps.JobTypes, "FULL_INDEX")
	assert.Contains(t, caps.JobTypes, "REGENERATE_SUMMARY")
	assert.Len(t, caps.JobTypes, 12)
}
