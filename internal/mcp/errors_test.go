package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

func asToolError(t *testing.T, err error) *ToolError {
	t.Helper()
	var te *ToolError
	require.ErrorAs(t, err, &te)
	return te
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapErrorRepoNotFound(t *testing.T) {
	err := cmerrors.RepoNotFound("backend")
	err.Suggestions = []cmerrors.Suggestion{
		{Name: "backend-api", Similarity: 0.91},
		{Name: "backend-jobs", Similarity: 0.85},
	}
	te := asToolError(t, MapError(err))
	assert.Equal(t, ErrCodeRepoNotFound, te.Code)
	assert.Contains(t, te.Message, "backend-api, backend-jobs")
	assert.Contains(t, te.Message, "list_repos")
}

func TestMapErrorInvalidInput(t *testing.T) {
	te := asToolError(t, MapError(cmerrors.InvalidInput("top_k out of range")))
	assert.Equal(t, ErrCodeInvalidParams, te.Code)
}

func TestMapErrorRetrievalUnavailable(t *testing.T) {
	te := asToolError(t, MapError(cmerrors.RetrievalUnavailable(errors.New("pool exhausted"))))
	assert.Equal(t, ErrCodeRetrievalUnavailable, te.Code)
}

func TestMapErrorProvider(t *testing.T) {
	te := asToolError(t, MapError(cmerrors.ProviderTransient("429 from provider", nil)))
	assert.Equal(t, ErrCodeProvider, te.Code)

	te = asToolError(t, MapError(cmerrors.DimensionMismatch("chunk_embeddings", 768, 1024)))
	assert.Equal(t, ErrCodeProvider, te.Code)
}

func TestMapErrorDeadline(t *testing.T) {
	te := asToolError(t, MapError(context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, te.Code)
}

func TestMapErrorPlain(t *testing.T) {
	te := asToolError(t, MapError(errors.New("boom")))
	assert.Equal(t, ErrCodeInternalError, te.Code)
	assert.Contains(t, te.Message, "boom")
}
