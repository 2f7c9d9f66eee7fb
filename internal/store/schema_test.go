package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaNameForRepo(t *testing.T) {
	tests := []struct {
		name     string
		repoName string
		want     string
	}{
		{name: "plain", repoName: "myrepo", want: "repo_myrepo"},
		{name: "dashes collapse to underscore", repoName: "pg-go-app", want: "repo_pg_go_app"},
		{name: "mixed case lowers", repoName: "Legacy1", want: "repo_legacy1"},
		{name: "punctuation runs collapse", repoName: "my..weird//repo", want: "repo_my_weird_repo"},
		{name: "leading and trailing junk trimmed", repoName: "--edge--", want: "repo_edge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SchemaNameForRepo("repo_", tt.repoName))
		})
	}
}

func TestSchemaNameForRepoTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	name := SchemaNameForRepo("repo_", long)
	assert.LessOrEqual(t, len(name), maxIdentifierLen)
	assert.True(t, strings.HasPrefix(name, "repo_"))
}

func TestValidateRepoName(t *testing.T) {
	require.NoError(t, ValidateRepoName("wrestling-game"))
	require.NoError(t, ValidateRepoName("a"))

	assert.Error(t, ValidateRepoName(""))
	assert.Error(t, ValidateRepoName("   "))
	assert.Error(t, ValidateRepoName("---"))
	assert.Error(t, ValidateRepoName(strings.Repeat("x", 101)))
}

func TestRepoSchemaDDLUsesDimension(t *testing.T) {
	stmts := repoSchemaDDL(384)
	var vectorCols int
	for _, stmt := range stmts {
		if strings.Contains(stmt, "vector(384)") {
			vectorCols++
		}
	}
	// chunk, document, and summary embedding tables all carry the dimension.
	assert.Equal(t, 3, vectorCols)
}

func TestRepoSchemaDDLIdempotent(t *testing.T) {
	for _, stmt := range repoSchemaDDL(768) {
		assert.True(t,
			strings.Contains(stmt, "IF NOT EXISTS"),
			"statement must be idempotent: %s", stmt)
	}
}
