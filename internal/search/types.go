// Package search implements hybrid retrieval over indexed chunks and
// documents: a vector leg and an OR-joined full-text leg run
// concurrently, merge by entity id under min-max normalization, and a
// small tag boost nudges rule- or human-tagged entities up. Every
// result carries the per-leg ranks and scores it was ranked by.
package search

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/codemaphq/codemap/internal/store"
)

// Filters narrow retrieval before ranking. Path and language filters
// push down into the SQL legs; tag filters apply after the merge.
type Filters struct {
	// PathGlob is a shell-style pattern over file paths ('*' and '?').
	PathGlob string `json:"path_glob,omitempty"`
	// Languages keeps only chunks in these languages.
	Languages []string `json:"languages,omitempty"`
	// TagsAll keeps only entities carrying every listed tag.
	TagsAll []string `json:"tags_all,omitempty"`
	// TagsAny keeps only entities carrying at least one listed tag.
	TagsAny []string `json:"tags_any,omitempty"`
}

// Request is one hybrid search.
type Request struct {
	Query   string  `json:"query"`
	TopK    int     `json:"top_k,omitempty"`
	Filters Filters `json:"filters,omitempty"`
	// RequireTextMatch drops candidates the full-text leg never saw.
	// Useful when vector neighbors drift off the literal identifier.
	RequireTextMatch bool `json:"require_text_match,omitempty"`
}

// Result is one ranked chunk with its scoring breakdown. A rank of 0
// means the leg did not return the chunk.
type Result struct {
	ChunkID     int64    `json:"chunk_id"`
	FileID      int64    `json:"file_id"`
	Path        string   `json:"path"`
	Language    string   `json:"language"`
	Kind        string   `json:"kind"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	SymbolFQN   string   `json:"symbol_fqn,omitempty"`
	Snippet     string   `json:"snippet"`
	VecRank     int      `json:"vec_rank"`
	VecScore    float64  `json:"vec_score"`
	FTSRank     int      `json:"fts_rank"`
	FTSScore    float64  `json:"fts_score"`
	MatchedTags []string `json:"matched_tags,omitempty"`
	FinalScore  float64  `json:"final_score"`
}

// Response is a ranked result set. Degraded is true when the vector
// leg was unavailable and only full-text ranking applied.
type Response struct {
	Results  []Result `json:"results"`
	Degraded bool     `json:"degraded"`
	TookMS   int64    `json:"took_ms"`
}

// DocResult is one ranked document with its scoring breakdown.
type DocResult struct {
	DocumentID  int64    `json:"document_id"`
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	DocType     string   `json:"doc_type"`
	Snippet     string   `json:"snippet"`
	VecRank     int      `json:"vec_rank"`
	VecScore    float64  `json:"vec_score"`
	FTSRank     int      `json:"fts_rank"`
	FTSScore    float64  `json:"fts_score"`
	MatchedTags []string `json:"matched_tags,omitempty"`
	FinalScore  float64  `json:"final_score"`
}

// DocResponse is a ranked document result set.
type DocResponse struct {
	Results  []DocResult `json:"results"`
	Degraded bool        `json:"degraded"`
	TookMS   int64       `json:"took_ms"`
}

// Backend is the store surface the engine retrieves through.
type Backend interface {
	SearchChunksVector(ctx context.Context, schema string, query pgvector.Vector, k int, filters store.SearchFilters) ([]store.ChunkHit, error)
	SearchChunksFTS(ctx context.Context, schema, tsquery string, k int, filters store.SearchFilters) ([]store.ChunkHit, error)
	SearchDocumentsVector(ctx context.Context, schema string, query pgvector.Vector, k int) ([]store.DocumentHit, error)
	SearchDocumentsFTS(ctx context.Context, schema, tsquery string, k int) ([]store.DocumentHit, error)
	TagsForEntities(ctx context.Context, schema, entityType string, ids []int64) (map[int64][]string, error)
	GrepChunks(ctx context.Context, schema, pattern string, limit int) ([]store.ChunkHit, error)
}
