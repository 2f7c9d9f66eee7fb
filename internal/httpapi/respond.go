package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error        string                `json:"error"`
	Kind         string                `json:"kind"`
	Detail       map[string]string     `json:"detail,omitempty"`
	RecoveryHint string                `json:"recovery_hint,omitempty"`
	Suggestions  []cmerrors.Suggestion `json:"suggestions,omitempty"`
}

// statusFor maps error kinds onto HTTP statuses. Resolution failures are
// client errors with suggestions attached, never 500s.
func statusFor(kind cmerrors.Kind) int {
	switch kind {
	case cmerrors.KindRepoNotFound:
		return http.StatusNotFound
	case cmerrors.KindInvalidInput:
		return http.StatusBadRequest
	case cmerrors.KindSchemaConflict, cmerrors.KindDimensionMismatch, cmerrors.KindCancelled:
		return http.StatusConflict
	case cmerrors.KindRetrievalUnavailable, cmerrors.KindProviderTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	body := errorBody{Error: err.Error(), Kind: string(cmerrors.KindInternal)}
	status := http.StatusInternalServerError

	var cerr *cmerrors.Error
	if errors.As(err, &cerr) {
		status = statusFor(cerr.Kind)
		body.Error = cerr.Message
		body.Kind = string(cerr.Kind)
		body.Detail = cerr.Details
		body.RecoveryHint = cerr.Hint
		body.Suggestions = cerr.Suggestions
	}

	if status >= 500 {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"status", status, "request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path,
			"status", status, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, body)
}
