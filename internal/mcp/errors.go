// Package mcp exposes the retrieval and registry operations as Model
// Context Protocol tools over stdio, for AI coding agents.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// JSON-RPC error codes used by the tool surface.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	// ErrCodeRepoNotFound indicates repository resolution failed.
	ErrCodeRepoNotFound = -32001

	// ErrCodeRetrievalUnavailable indicates both retrieval legs failed.
	ErrCodeRetrievalUnavailable = -32002

	// ErrCodeProvider indicates the embedding or LLM provider failed.
	ErrCodeProvider = -32003

	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout = -32004
)

// ToolError is a JSON-RPC shaped error with a recovery hint appended to
// the message so agents can self-correct.
type ToolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds a -32602 for a bad tool argument.
func NewInvalidParamsError(message string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts service errors into tool errors. Suggestions and
// hints travel in the message text since tool results are what the
// agent actually reads.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Code: ErrCodeTimeout, Message: "request timed out"}
	}

	var cerr *cmerrors.Error
	if !errors.As(err, &cerr) {
		return &ToolError{Code: ErrCodeInternalError, Message: err.Error()}
	}

	msg := cerr.Message
	if len(cerr.Suggestions) > 0 {
		names := make([]string, 0, len(cerr.Suggestions))
		for _, sug := range cerr.Suggestions {
			names = append(names, sug.Name)
		}
		msg += "; did you mean: " + strings.Join(names, ", ")
	}
	if cerr.Hint != "" {
		msg += " (" + cerr.Hint + ")"
	}

	code := ErrCodeInternalError
	switch cerr.Kind {
	case cmerrors.KindRepoNotFound:
		code = ErrCodeRepoNotFound
	case cmerrors.KindInvalidInput:
		code = ErrCodeInvalidParams
	case cmerrors.KindRetrievalUnavailable:
		code = ErrCodeRetrievalUnavailable
	case cmerrors.KindProviderTransient, cmerrors.KindProviderFatal, cmerrors.KindDimensionMismatch:
		code = ErrCodeProvider
	case cmerrors.KindJobTimeout:
		code = ErrCodeTimeout
	}
	return &ToolError{Code: code, Message: msg}
}
