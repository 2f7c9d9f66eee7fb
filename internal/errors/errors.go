// Package errors provides structured error handling for codemap.
//
// Every boundary method returns a *Error carrying a Kind from the closed
// set in kinds.go, optional key-value details, a recovery hint, and (for
// repository resolution failures) fuzzy-match suggestions. Workers and the
// HTTP/MCP surfaces classify errors by Kind; everything else wraps with
// fmt.Errorf("...: %w", err).
package errors

import (
	stderrors "errors"
	"fmt"
)

// Suggestion is a fuzzy-match candidate attached to resolution failures.
type Suggestion struct {
	Name          string  `json:"name"`
	Similarity    float64 `json:"similarity"`
	FileCount     int     `json:"file_count"`
	LastIndexedAt string  `json:"last_indexed_at,omitempty"`
}

// Error is the structured error type for codemap.
type Error struct {
	// Kind classifies the error; see kinds.go for the closed set.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Hint is an actionable recovery hint for the caller.
	Hint string

	// Suggestions holds fuzzy-match candidates for not-found errors.
	Suggestions []Suggestion
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithHint sets the recovery hint.
// Returns the error for method chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithSuggestions attaches fuzzy-match suggestions.
// Returns the error for method chaining.
func (e *Error) WithSuggestions(s []Suggestion) *Error {
	e.Suggestions = s
	return e
}

// New creates a new Error with the given kind and message.
// The retryable flag is derived from the kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kind.Retryable(),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error, keeping its message.
// Returns nil when err is nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is reports whether err's chain contains an Error of the given kind.
func Is(err error, kind Kind) bool {
	if ce, ok := As(err); ok {
		return ce.Kind == kind
	}
	return false
}

// IsRetryable reports whether the error may be retried.
func IsRetryable(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Retryable
	}
	return false
}

// KindOf extracts the Kind from an error's chain.
// Returns KindInternal for non-structured errors, empty for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// HintOf extracts the recovery hint, if any.
func HintOf(err error) string {
	if ce, ok := As(err); ok {
		return ce.Hint
	}
	return ""
}

// SuggestionsOf extracts attached suggestions, if any.
func SuggestionsOf(err error) []Suggestion {
	if ce, ok := As(err); ok {
		return ce.Suggestions
	}
	return nil
}
