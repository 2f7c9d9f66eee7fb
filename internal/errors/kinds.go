package errors

// Kind classifies an error. The set is closed; workers, the job queue, and
// the HTTP/MCP surfaces dispatch on it.
type Kind string

const (
	// KindRepoNotFound means repository resolution failed. Carries fuzzy
	// suggestions. Never retried.
	KindRepoNotFound Kind = "RepoNotFound"

	// KindSchemaConflict means a schema is already owned by a different
	// registration. Surfaced; never auto-recovered.
	KindSchemaConflict Kind = "SchemaConflict"

	// KindParseFailure means a single file failed to parse. Logged at WARN,
	// the file is skipped, the run continues.
	KindParseFailure Kind = "ParseFailure"

	// KindProviderTransient means the embedding/LLM provider returned a
	// retryable failure (429, 5xx, timeout). Retried with backoff.
	KindProviderTransient Kind = "ProviderTransient"

	// KindProviderFatal means the provider rejected the request outright
	// (bad model, bad request shape). Fails the job immediately.
	KindProviderFatal Kind = "ProviderFatal"

	// KindDimensionMismatch means the configured embedding dimension differs
	// from the table's column dimension. Fails fast; requires reembed-table.
	KindDimensionMismatch Kind = "DimensionMismatch"

	// KindJobTimeout means a claimed job exceeded its deadline and was
	// released back to PENDING by the health monitor.
	KindJobTimeout Kind = "JobTimeout"

	// KindCancelled means the job was cancelled by a user or by timeout.
	// Terminal.
	KindCancelled Kind = "Cancelled"

	// KindRetrievalUnavailable means both retrieval legs failed. Partial
	// failures degrade instead of raising this.
	KindRetrievalUnavailable Kind = "RetrievalUnavailable"

	// KindIOError means a file could not be read during indexing. Logged,
	// the file is skipped, the run continues.
	KindIOError Kind = "IOError"

	// KindInvalidInput means a request failed validation.
	KindInvalidInput Kind = "InvalidInput"

	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "Internal"
)

// Retryable reports whether jobs failing with this kind should be requeued
// with backoff rather than marked FAILED.
func (k Kind) Retryable() bool {
	switch k {
	case KindProviderTransient, KindJobTimeout:
		return true
	default:
		return false
	}
}

// Terminal reports whether the kind ends a job with no rescheduling.
func (k Kind) Terminal() bool {
	switch k {
	case KindCancelled, KindProviderFatal, KindDimensionMismatch, KindSchemaConflict:
		return true
	default:
		return false
	}
}

// RepoNotFound builds the standard resolution failure.
func RepoNotFound(repo string) *Error {
	return Newf(KindRepoNotFound, "no repository named %q is registered", repo).
		WithDetail("repo", repo).
		WithHint("list registered repositories with GET /api/registry or the list_repos tool")
}

// SchemaConflict builds the schema ownership failure.
func SchemaConflict(schema, owner string) *Error {
	return Newf(KindSchemaConflict, "schema %q is owned by repository %q", schema, owner).
		WithDetail("schema", schema).
		WithDetail("owner", owner)
}

// ParseFailure wraps a per-file parse error.
func ParseFailure(path string, cause error) *Error {
	return New(KindParseFailure, "parse failed: "+path, cause).WithDetail("path", path)
}

// ProviderTransient wraps a retryable provider failure.
func ProviderTransient(message string, cause error) *Error {
	return New(KindProviderTransient, message, cause)
}

// ProviderFatal wraps a non-retryable provider failure.
func ProviderFatal(message string, cause error) *Error {
	return New(KindProviderFatal, message, cause)
}

// DimensionMismatch builds the embedding dimension failure.
func DimensionMismatch(table string, want, got int) *Error {
	return Newf(KindDimensionMismatch, "embedding dimension mismatch on %s: configured %d, column is %d", table, want, got).
		WithDetail("table", table).
		WithHint("run POST /api/maintenance/reembed-table to rebuild embeddings at the configured dimension")
}

// Cancelled builds the terminal cancellation error.
func Cancelled(reason string) *Error {
	return New(KindCancelled, reason, nil)
}

// RetrievalUnavailable builds the both-legs-failed retrieval error.
func RetrievalUnavailable(cause error) *Error {
	return New(KindRetrievalUnavailable, "both vector and full-text retrieval failed", cause).
		WithHint("check database connectivity and the embedding provider, then retry")
}

// IOError wraps a file read failure during indexing.
func IOError(path string, cause error) *Error {
	return New(KindIOError, "read failed: "+path, cause).WithDetail("path", path)
}

// InvalidInput builds a request validation failure.
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message, nil)
}

// Internal wraps an unclassified failure.
func Internal(message string, cause error) *Error {
	return New(KindInternal, message, cause)
}
