// Package store is the PostgreSQL persistence layer: the control schema
// (repo registry, job queue, daemon instances) and the per-repository
// schemas holding files, symbols, chunks, edges, documents, summaries,
// embeddings, and tags.
package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType identifies what a queued job does.
type JobType string

const (
	JobFullIndex         JobType = "FULL_INDEX"
	JobReindexFile       JobType = "REINDEX_FILE"
	JobReindexMany       JobType = "REINDEX_MANY"
	JobEmbedMissing      JobType = "EMBED_MISSING"
	JobEmbedChunk        JobType = "EMBED_CHUNK"
	JobEmbedSummaries    JobType = "EMBED_SUMMARIES"
	JobDocsScan          JobType = "DOCS_SCAN"
	JobTagRulesSync      JobType = "TAG_RULES_SYNC"
	JobSummarizeMissing  JobType = "SUMMARIZE_MISSING"
	JobSummarizeFiles    JobType = "SUMMARIZE_FILES"
	JobSummarizeSymbols  JobType = "SUMMARIZE_SYMBOLS"
	JobRegenerateSummary JobType = "REGENERATE_SUMMARY"
)

// jobTypeSpec is the scheduling contract for one job type: where it
// runs, when it runs relative to other types, whether a failed attempt
// may be re-run, and the shape of its dedup key.
type jobTypeSpec struct {
	RunsInRepoSchema  bool
	DefaultPriority   int
	IdempotentOnRetry bool
	// DedupKeyTemplate renders the dedup key from {type}, {repo}, and
	// {scope}. Empty disables dedup for the type.
	DedupKeyTemplate string
}

// jobTypeSpecs is the single registry driving Valid, DefaultPriority,
// retry policy, and dedup keys. Priorities decrease as the follow-up
// chain deepens so upstream work drains first.
var jobTypeSpecs = map[JobType]jobTypeSpec{
	JobFullIndex:         {RunsInRepoSchema: true, DefaultPriority: 10, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobReindexFile:       {RunsInRepoSchema: true, DefaultPriority: 9, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}:{scope}"},
	JobReindexMany:       {RunsInRepoSchema: true, DefaultPriority: 9, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}:{scope}"},
	JobDocsScan:          {RunsInRepoSchema: true, DefaultPriority: 9, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobTagRulesSync:      {RunsInRepoSchema: true, DefaultPriority: 7, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobEmbedMissing:      {RunsInRepoSchema: true, DefaultPriority: 5, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}:{scope}"},
	JobEmbedChunk:        {RunsInRepoSchema: true, DefaultPriority: 5, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}:{scope}"},
	JobSummarizeMissing:  {RunsInRepoSchema: true, DefaultPriority: 4, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobSummarizeFiles:    {RunsInRepoSchema: true, DefaultPriority: 4, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobSummarizeSymbols:  {RunsInRepoSchema: true, DefaultPriority: 4, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
	JobEmbedSummaries:    {RunsInRepoSchema: true, DefaultPriority: 3, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}:{scope}"},
	JobRegenerateSummary: {RunsInRepoSchema: true, DefaultPriority: 2, IdempotentOnRetry: true, DedupKeyTemplate: "{type}:{repo}"},
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	_, ok := jobTypeSpecs[t]
	return ok
}

// DefaultPriority returns the scheduling priority for a job type.
// Higher runs first.
func (t JobType) DefaultPriority() int {
	if s, ok := jobTypeSpecs[t]; ok {
		return s.DefaultPriority
	}
	return 1
}

// RunsInRepoSchema reports whether the job's work happens inside a
// repo schema rather than the control schema alone.
func (t JobType) RunsInRepoSchema() bool {
	return jobTypeSpecs[t].RunsInRepoSchema
}

// IdempotentOnRetry reports whether a failed attempt may safely be
// re-run. Non-idempotent types go straight to FAILED on error.
func (t JobType) IdempotentOnRetry() bool {
	return jobTypeSpecs[t].IdempotentOnRetry
}

// DedupKey renders the type's dedup key for a repo and an optional
// scope (a file path, an embed target). Empty means dedup is disabled
// for this type.
func (t JobType) DedupKey(repo, scope string) string {
	tpl := jobTypeSpecs[t].DedupKeyTemplate
	if tpl == "" {
		return ""
	}
	key := strings.NewReplacer(
		"{type}", string(t),
		"{repo}", repo,
		"{scope}", scope,
	).Replace(tpl)
	return strings.TrimSuffix(key, ":")
}

// JobStatus is the queue lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobClaimed   JobStatus = "CLAIMED"
	JobDone      JobStatus = "DONE"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// Job is one row in the control-schema job queue.
type Job struct {
	ID              uuid.UUID       `json:"id"`
	RepoName        string          `json:"repo_name"`
	SchemaName      string          `json:"schema_name"`
	Type            JobType         `json:"job_type"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Priority        int             `json:"priority"`
	Status          JobStatus       `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	DedupKey        *string         `json:"dedup_key,omitempty"`
	ClaimedBy       *string         `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time      `json:"claimed_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	RunAfter        *time.Time      `json:"run_after,omitempty"`
	LastError       *string         `json:"last_error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// JobSpec describes a job to enqueue.
type JobSpec struct {
	RepoName    string
	Type        JobType
	Payload     any
	Priority    int    // 0 means DefaultPriority for the type
	MaxAttempts int    // 0 means the daemon default
	DedupKey    string // empty disables dedup
	RunAfter    time.Time
}

// Repo is one row in the control-schema registry.
type Repo struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	SchemaName         string            `json:"schema_name"`
	RootPath           string            `json:"root_path"`
	Enabled            bool              `json:"enabled"`
	AutoIndex          bool              `json:"auto_index"`
	AutoEmbed          bool              `json:"auto_embed"`
	AutoWatch          bool              `json:"auto_watch"`
	AutoSummaries      bool              `json:"auto_summaries"`
	EmbeddingModel     string            `json:"embedding_model"`
	EmbeddingDimension int               `json:"embedding_dimension"`
	Config             map[string]string `json:"config,omitempty"`
	FileCount          int               `json:"file_count"`
	ChunkCount         int               `json:"chunk_count"`
	LastIndexedAt      *time.Time        `json:"last_indexed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Daemon is one row per live worker process.
type Daemon struct {
	InstanceID    string    `json:"instance_id"`
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// SymbolKind classifies extracted symbols.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolStruct    SymbolKind = "struct"
	SymbolModule    SymbolKind = "module"
	SymbolTypedef   SymbolKind = "typedef"
	SymbolTable     SymbolKind = "table"
	SymbolView      SymbolKind = "view"
	SymbolProcedure SymbolKind = "procedure"
	SymbolIndex     SymbolKind = "index"
)

// ChunkKind classifies retrievable chunks.
type ChunkKind string

const (
	ChunkFileHeader ChunkKind = "file_header"
	ChunkSymbol     ChunkKind = "symbol"
	ChunkProse      ChunkKind = "prose"
)

// EdgeType classifies symbol relationships.
type EdgeType string

const (
	EdgeCalls      EdgeType = "CALLS"
	EdgeImports    EdgeType = "IMPORTS"
	EdgeInherits   EdgeType = "INHERITS"
	EdgeImplements EdgeType = "IMPLEMENTS"
)

// File is one tracked file in a repo schema. SHA is the content hash used
// as the idempotency key for reindex.
type File struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Language  string    `json:"language"`
	SHA       string    `json:"sha"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Symbol is one extracted definition. FQN is unique within the schema
// where resolvable.
type Symbol struct {
	ID         int64      `json:"id"`
	FileID     int64      `json:"file_id"`
	FQN        string     `json:"fqn"`
	SimpleName string     `json:"simple_name"`
	Kind       SymbolKind `json:"kind"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`
	Signature  string     `json:"signature,omitempty"`
	Language   string     `json:"language"`
}

// Chunk is one retrievable unit. ContentHash is the embedding dedup key:
// two chunks sharing a hash share a vector.
type Chunk struct {
	ID          int64     `json:"id"`
	FileID      int64     `json:"file_id"`
	SymbolID    *int64    `json:"symbol_id,omitempty"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language"`
	Kind        ChunkKind `json:"kind"`
}

// Edge is one relationship between symbols. Either ToSymbolID or ToName is
// present; resolution fills ToSymbolID when the target exists in the repo.
type Edge struct {
	ID             int64    `json:"id"`
	FromSymbolID   int64    `json:"from_symbol_id"`
	ToSymbolID     *int64   `json:"to_symbol_id,omitempty"`
	ToName         *string  `json:"to_name,omitempty"`
	Type           EdgeType `json:"edge_type"`
	EvidenceFileID int64    `json:"evidence_file_id"`
	EvidenceLine   int      `json:"evidence_line"`
}

// Document is one knowledge-base entry (README, markdown, plain docs).
type Document struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	DocType     string    `json:"doc_type"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SummaryTargetKind identifies what a summary describes.
type SummaryTargetKind string

const (
	SummaryTargetFile   SummaryTargetKind = "file"
	SummaryTargetSymbol SummaryTargetKind = "symbol"
	// SummaryTargetRepo is the single repo-level overview row
	// (target_id 0).
	SummaryTargetRepo SummaryTargetKind = "repo"
)

// Summary is one generated natural-language description of a file or symbol.
type Summary struct {
	ID          int64             `json:"id"`
	TargetKind  SummaryTargetKind `json:"target_kind"`
	TargetID    int64             `json:"target_id"`
	Content     string            `json:"content"`
	ContentHash string            `json:"content_hash"`
	Model       string            `json:"model"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// TagSource records how an entity acquired a tag.
type TagSource string

const (
	TagSourceSemantic TagSource = "SEMANTIC_MATCH"
	TagSourceManual   TagSource = "MANUAL"
	TagSourceRule     TagSource = "RULE"
)

// Tag is a process-wide label; Rule is an optional path/content pattern
// applied by TAG_RULES_SYNC.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Rule      string    `json:"rule,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityTag attaches a Tag to a chunk, file, or document within a repo.
type EntityTag struct {
	TagID      int64     `json:"tag_id"`
	TagName    string    `json:"tag_name,omitempty"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Confidence float64   `json:"confidence"`
	Source     TagSource `json:"source"`
}

// IndexState is the single-row bookkeeping table in each repo schema.
type IndexState struct {
	LastIndexedAt  *time.Time `json:"last_indexed_at,omitempty"`
	LastScanCommit string     `json:"last_scan_commit,omitempty"`
}

// VectorIndexState tracks the ANN index on one embedding table.
type VectorIndexState struct {
	TableName   string     `json:"table_name"`
	IndexKind   string     `json:"index_kind"` // "ivfflat" or "hnsw"
	RowsAtBuild int64      `json:"rows_at_build"`
	BuiltAt     *time.Time `json:"built_at,omitempty"`
}

// ChunkHit is one raw leg result from a chunk search (vector or FTS).
// Score is leg-local: cosine similarity for the vector leg, ts_rank_cd
// for the FTS leg.
type ChunkHit struct {
	ChunkID   int64
	FileID    int64
	Path      string
	Language  string
	Kind      ChunkKind
	StartLine int
	EndLine   int
	Content   string
	SymbolFQN *string
	Score     float64
}

// DocumentHit is one raw leg result from a document search.
type DocumentHit struct {
	DocumentID int64
	Path       string
	Title      string
	DocType    string
	Content    string
	Score      float64
}

// EmbedTarget names an embedding table and its entity source.
type EmbedTarget struct {
	Table       string // chunk_embeddings, document_embeddings, summary_embeddings
	EntityTable string // chunks, documents, summaries
	EntityID    string // id column on the entity table
}

// Embedding tables and their sources.
var (
	TargetChunks = EmbedTarget{
		Table:       "chunk_embeddings",
		EntityTable: "chunks",
		EntityID:    "chunk_id",
	}
	TargetDocuments = EmbedTarget{
		Table:       "document_embeddings",
		EntityTable: "documents",
		EntityID:    "document_id",
	}
	TargetSummaries = EmbedTarget{
		Table:       "summary_embeddings",
		EntityTable: "summaries",
		EntityID:    "summary_id",
	}
)

// PendingText is one entity awaiting an embedding.
type PendingText struct {
	EntityID    int64
	ContentHash string
	Content     string
}
