package mcp

// Input and output schemas for every tool. The jsonschema tags become
// the parameter descriptions agents see.

// RepoScopedInput is embedded by tools that operate on one repository.
type RepoScopedInput struct {
	Repo string `json:"repo,omitempty" jsonschema:"repository name; omitted uses the configured default repo"`
}

// ListReposInput has no parameters.
type ListReposInput struct{}

// RepoSummary is one registry entry in list_repos output.
type RepoSummary struct {
	Name          string `json:"name"`
	RootPath      string `json:"root_path"`
	Enabled       bool   `json:"enabled"`
	FileCount     int    `json:"file_count"`
	ChunkCount    int    `json:"chunk_count"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}

// ListReposOutput is the list_repos result.
type ListReposOutput struct {
	Repos []RepoSummary `json:"repos"`
}

// HybridSearchInput is the hybrid_search schema.
type HybridSearchInput struct {
	RepoScopedInput
	Query            string   `json:"query" jsonschema:"the search query"`
	TopK             int      `json:"top_k,omitempty" jsonschema:"maximum results, default 12, max 100"`
	PathGlob         string   `json:"path_glob,omitempty" jsonschema:"glob filter on file paths, e.g. src/**/*.py"`
	Languages        []string `json:"languages,omitempty" jsonschema:"filter by languages, e.g. python, go"`
	TagsAll          []string `json:"tags_all,omitempty" jsonschema:"results must carry every listed tag"`
	TagsAny          []string `json:"tags_any,omitempty" jsonschema:"results must carry at least one listed tag"`
	RequireTextMatch bool     `json:"require_text_match,omitempty" jsonschema:"drop results with no full-text match"`
}

// SearchHit is one scored result with the per-leg explanation.
type SearchHit struct {
	Path        string   `json:"path"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Language    string   `json:"language,omitempty"`
	SymbolFQN   string   `json:"symbol,omitempty"`
	Snippet     string   `json:"snippet"`
	Score       float64  `json:"score"`
	VecRank     int      `json:"vec_rank,omitempty"`
	FTSRank     int      `json:"fts_rank,omitempty"`
	MatchedTags []string `json:"matched_tags,omitempty"`
}

// SearchOutput is shared by hybrid_search, doc_search, and pattern_scan.
type SearchOutput struct {
	Repo     string      `json:"repo"`
	Results  []SearchHit `json:"results"`
	Degraded bool        `json:"degraded,omitempty"`
	TookMS   int64       `json:"took_ms"`
}

// DocSearchInput is the doc_search schema.
type DocSearchInput struct {
	RepoScopedInput
	Query string `json:"query" jsonschema:"the documentation search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum results, default 12"`
}

// PatternScanInput is the pattern_scan schema.
type PatternScanInput struct {
	RepoScopedInput
	Pattern string `json:"pattern" jsonschema:"literal substring to find in chunk contents"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum results, default 50"`
}

// SymbolLookupInput is the symbol_lookup schema.
type SymbolLookupInput struct {
	RepoScopedInput
	Name  string `json:"name" jsonschema:"fully-qualified or simple symbol name"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum matches, default 10"`
}

// SymbolInfo is one symbol row in tool output.
type SymbolInfo struct {
	FQN       string `json:"fqn"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
	Language  string `json:"language,omitempty"`
}

// SymbolLookupOutput is the symbol_lookup result.
type SymbolLookupOutput struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolContextInput is the symbol_context schema.
type SymbolContextInput struct {
	RepoScopedInput
	Name string `json:"name" jsonschema:"fully-qualified or simple symbol name"`
}

// NeighborInfo is one graph edge in symbol_context/callers/callees.
type NeighborInfo struct {
	FQN  string `json:"fqn"`
	Kind string `json:"kind"`
	Path string `json:"path"`
	Edge string `json:"edge"`
	Line int    `json:"line,omitempty"`
}

// SymbolContextOutput is the symbol_context result.
type SymbolContextOutput struct {
	Symbol  SymbolInfo     `json:"symbol"`
	Summary string         `json:"summary,omitempty"`
	Callers []NeighborInfo `json:"callers"`
	Callees []NeighborInfo `json:"callees"`
}

// EdgeQueryInput is the callers/callees schema.
type EdgeQueryInput struct {
	RepoScopedInput
	Name     string `json:"name" jsonschema:"fully-qualified or simple symbol name"`
	EdgeType string `json:"edge_type,omitempty" jsonschema:"CALLS (default), IMPORTS, INHERITS, or IMPLEMENTS"`
}

// EdgeQueryOutput lists graph neighbors.
type EdgeQueryOutput struct {
	Neighbors []NeighborInfo `json:"neighbors"`
}

// ListFilesInput is the list_files schema.
type ListFilesInput struct {
	RepoScopedInput
	Prefix string `json:"prefix,omitempty" jsonschema:"path prefix filter"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum files, default 200"`
}

// FileInfo is one indexed file row.
type FileInfo struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Size     int64  `json:"size_bytes"`
}

// ListFilesOutput is the list_files result.
type ListFilesOutput struct {
	Files []FileInfo `json:"files"`
}

// ReadFileInput is the read_file schema.
type ReadFileInput struct {
	RepoScopedInput
	Path string `json:"path" jsonschema:"repo-relative file path"`
}

// ReadFileOutput carries current file content from disk.
type ReadFileOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListTagsInput is the list_tags schema.
type ListTagsInput struct {
	RepoScopedInput
}

// TagInfo is one tag row.
type TagInfo struct {
	Name string `json:"name"`
	Rule string `json:"rule,omitempty"`
}

// ListTagsOutput is the list_tags result.
type ListTagsOutput struct {
	Tags []TagInfo `json:"tags"`
}

// TagEntityInput is the tag_entity schema.
type TagEntityInput struct {
	RepoScopedInput
	Tag        string `json:"tag" jsonschema:"tag name; created on first use"`
	EntityType string `json:"entity_type" jsonschema:"file, chunk, or document"`
	EntityID   int64  `json:"entity_id" jsonschema:"id of the entity to tag"`
}

// TagEntityOutput acknowledges the tagging.
type TagEntityOutput struct {
	Tagged bool `json:"tagged"`
}

// RepoAddInput is the repo_add schema.
type RepoAddInput struct {
	Name          string `json:"name" jsonschema:"repository name, lowercase letters, digits, hyphens, underscores"`
	RootPath      string `json:"root_path" jsonschema:"absolute path to the repository root"`
	AutoWatch     bool   `json:"auto_watch,omitempty" jsonschema:"start a filesystem watcher for this repo"`
	AutoSummaries bool   `json:"auto_summaries,omitempty" jsonschema:"generate LLM summaries after indexing"`
}

// RepoAddOutput reports the new registration.
type RepoAddOutput struct {
	Name       string `json:"name"`
	SchemaName string `json:"schema_name"`
	JobQueued  bool   `json:"index_job_queued"`
}

// ReindexFileInput is the enqueue_reindex_file schema.
type ReindexFileInput struct {
	RepoScopedInput
	Path string `json:"path" jsonschema:"repo-relative path of the changed file"`
}

// ReindexManyInput is the enqueue_reindex_many schema.
type ReindexManyInput struct {
	RepoScopedInput
	Ops []FileOpArg `json:"ops" jsonschema:"file operations to apply"`
}

// FileOpArg is one entry of enqueue_reindex_many.
type FileOpArg struct {
	Path string `json:"path" jsonschema:"repo-relative file path"`
	Op   string `json:"op" jsonschema:"UPSERT or DELETE"`
}

// EnqueueOutput reports a queued job.
type EnqueueOutput struct {
	JobID   string `json:"job_id"`
	Created bool   `json:"created"`
	Status  string `json:"status"`
}

// DaemonStatusInput has no parameters.
type DaemonStatusInput struct{}

// DaemonInfo is one worker process row.
type DaemonInfo struct {
	InstanceID    string `json:"instance_id"`
	Hostname      string `json:"hostname"`
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// DaemonStatusOutput is the daemon_status result.
type DaemonStatusOutput struct {
	Daemons []DaemonInfo `json:"daemons"`
}

// IndexStatusInput is the index_status schema.
type IndexStatusInput struct {
	RepoScopedInput
}

// IndexStatusOutput reports table counts and queue depth for one repo.
type IndexStatusOutput struct {
	Repo          string         `json:"repo"`
	Files         int64          `json:"files"`
	Symbols       int64          `json:"symbols"`
	Chunks        int64          `json:"chunks"`
	Edges         int64          `json:"edges"`
	ResolvedEdges int64          `json:"resolved_edges"`
	Documents     int64          `json:"documents"`
	Embedded      int64          `json:"chunk_embeddings"`
	PendingEmbeds int64          `json:"pending_chunk_embeddings"`
	Jobs          map[string]int `json:"jobs,omitempty"`
	LastIndexedAt string         `json:"last_indexed_at,omitempty"`
}
