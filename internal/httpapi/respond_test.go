package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind cmerrors.Kind
		want int
	}{
		{cmerrors.KindRepoNotFound, http.StatusNotFound},
		{cmerrors.KindInvalidInput, http.StatusBadRequest},
		{cmerrors.KindSchemaConflict, http.StatusConflict},
		{cmerrors.KindDimensionMismatch, http.StatusConflict},
		{cmerrors.KindRetrievalUnavailable, http.StatusServiceUnavailable},
		{cmerrors.KindProviderTransient, http.StatusServiceUnavailable},
		{cmerrors.KindInternal, http.StatusInternalServerError},
		{cmerrors.KindIOError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), string(tt.kind))
	}
}

func TestWriteErrorStructured(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/registry/nope", nil)

	err := cmerrors.RepoNotFound("backend")
	err.Suggestions = []cmerrors.Suggestion{{Name: "backend-api", Similarity: 0.91}}
	writeError(rec, req, slog.Default(), err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(cmerrors.KindRepoNotFound), body.Kind)
	require.Len(t, body.Suggestions, 1)
	assert.Equal(t, "backend-api", body.Suggestions[0].Name)
	assert.NotEmpty(t, body.RecoveryHint)
}

func TestWriteErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/registry", nil)

	writeError(rec, req, slog.Default(), errors.New("pool exhausted"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(cmerrors.KindInternal), body.Kind)
	assert.Contains(t, body.Error, "pool exhausted")
}

func TestDecodeBody(t *testing.T) {
	s := &Server{validate: validator.New(validator.WithRequiredStructEnabled()), logger: slog.Default()}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search/hybrid",
			strings.NewReader(`{"query":"parse config","top_k":5}`))
		var body searchRequest
		require.NoError(t, s.decodeBody(req, &body))
		assert.Equal(t, "parse config", body.Query)
		assert.Equal(t, 5, body.TopK)
	})

	t.Run("missing required field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search/hybrid",
			strings.NewReader(`{"top_k":5}`))
		var body searchRequest
		err := s.decodeBody(req, &body)
		require.Error(t, err)
		assert.True(t, cmerrors.Is(err, cmerrors.KindInvalidInput))
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search/hybrid",
			strings.NewReader(`{"query":"x","nope":true}`))
		var body searchRequest
		require.Error(t, s.decodeBody(req, &body))
	})

	t.Run("top_k out of range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search/hybrid",
			strings.NewReader(`{"query":"x","top_k":5000}`))
		var body searchRequest
		require.Error(t, s.decodeBody(req, &body))
	})
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/registry/demo/jobs?limit=25", nil)
	assert.Equal(t, 25, queryInt(req, "limit", 50))
	assert.Equal(t, 50, queryInt(req, "missing", 50))

	bad := httptest.NewRequest(http.MethodGet, "/api/registry/demo/jobs?limit=-3", nil)
	assert.Equal(t, 50, queryInt(bad, "limit", 50))
}
