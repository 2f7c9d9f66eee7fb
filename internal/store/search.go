package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// SearchFilters narrow a retrieval leg before ranking. Tag filters are
// applied by the engine after the merge, so they are not here.
type SearchFilters struct {
	// PathGlob is a SQL LIKE pattern over file paths ('%' and '_').
	// Shell-style '*' and '?' are translated by the caller.
	PathGlob string
	// Languages keeps only chunks in these languages. Empty means all.
	Languages []string
}

func (f SearchFilters) pathLike() *string {
	if f.PathGlob == "" {
		return nil
	}
	p := f.PathGlob
	return &p
}

func (f SearchFilters) languages() []string {
	if len(f.Languages) == 0 {
		return nil
	}
	return f.Languages
}

// SearchChunksVector returns the top-k chunks by cosine similarity to the
// query vector. Score is 1 - cosine distance, in [0, 1] for normalized
// embeddings.
func (s *Store) SearchChunksVector(ctx context.Context, schema string, query pgvector.Vector, k int, filters SearchFilters) ([]ChunkHit, error) {
	if k <= 0 {
		k = 30
	}
	sql := `SELECT c.id, c.file_id, f.path, c.language, c.kind, c.start_line, c.end_line,
			c.content, sym.fqn, 1 - (emb.embedding <=> $1) AS score
		FROM chunk_embeddings emb
		JOIN chunks c ON c.id = emb.chunk_id
		JOIN files f ON f.id = c.file_id
		LEFT JOIN symbols sym ON sym.id = c.symbol_id
		WHERE ($3::text IS NULL OR f.path LIKE $3)
		  AND ($4::text[] IS NULL OR c.language = ANY($4))
		ORDER BY emb.embedding <=> $1
		LIMIT $2`

	return s.queryChunkHits(ctx, schema, sql, query, k, filters.pathLike(), filters.languages())
}

// SearchChunksFTS returns the top-k chunks by ts_rank_cd against an
// OR-joined tsquery. The tsquery text must already be safe for
// to_tsquery; BuildOrTsquery produces it.
func (s *Store) SearchChunksFTS(ctx context.Context, schema, tsquery string, k int, filters SearchFilters) ([]ChunkHit, error) {
	if tsquery == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 30
	}
	sql := `SELECT c.id, c.file_id, f.path, c.language, c.kind, c.start_line, c.end_line,
			c.content, sym.fqn, ts_rank_cd(c.fts, q) AS score
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		LEFT JOIN symbols sym ON sym.id = c.symbol_id,
		to_tsquery('simple', $1) q
		WHERE c.fts @@ q
		  AND ($3::text IS NULL OR f.path LIKE $3)
		  AND ($4::text[] IS NULL OR c.language = ANY($4))
		ORDER BY score DESC
		LIMIT $2`

	return s.queryChunkHits(ctx, schema, sql, tsquery, k, filters.pathLike(), filters.languages())
}

func (s *Store) queryChunkHits(ctx context.Context, schema, sql string, query any, k int, pathLike *string, languages []string) ([]ChunkHit, error) {
	var hits []ChunkHit
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, query, k, pathLike, languages)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h ChunkHit
			if err := rows.Scan(&h.ChunkID, &h.FileID, &h.Path, &h.Language, &h.Kind,
				&h.StartLine, &h.EndLine, &h.Content, &h.SymbolFQN, &h.Score); err != nil {
				return err
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return hits, nil
}

// SearchDocumentsVector mirrors SearchChunksVector against documents.
func (s *Store) SearchDocumentsVector(ctx context.Context, schema string, query pgvector.Vector, k int) ([]DocumentHit, error) {
	if k <= 0 {
		k = 30
	}
	sql := `SELECT d.id, d.path, d.title, d.doc_type, d.content,
			1 - (emb.embedding <=> $1) AS score
		FROM document_embeddings emb
		JOIN documents d ON d.id = emb.document_id
		ORDER BY emb.embedding <=> $1
		LIMIT $2`
	return s.queryDocumentHits(ctx, schema, sql, query, k)
}

// SearchDocumentsFTS mirrors SearchChunksFTS against documents.
func (s *Store) SearchDocumentsFTS(ctx context.Context, schema, tsquery string, k int) ([]DocumentHit, error) {
	if tsquery == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 30
	}
	sql := `SELECT d.id, d.path, d.title, d.doc_type, d.content,
			ts_rank_cd(d.fts, q) AS score
		FROM documents d, to_tsquery('simple', $1) q
		WHERE d.fts @@ q
		ORDER BY score DESC
		LIMIT $2`
	return s.queryDocumentHits(ctx, schema, sql, tsquery, k)
}

func (s *Store) queryDocumentHits(ctx context.Context, schema, sql string, query any, k int) ([]DocumentHit, error) {
	var hits []DocumentHit
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, query, k)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h DocumentHit
			if err := rows.Scan(&h.DocumentID, &h.Path, &h.Title, &h.DocType, &h.Content, &h.Score); err != nil {
				return err
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return hits, nil
}

// GrepChunks runs a case-insensitive substring scan over chunk content.
// The pattern-scan fallback for queries FTS stemming mangles (exact
// identifiers, error strings).
func (s *Store) GrepChunks(ctx context.Context, schema, pattern string, limit int) ([]ChunkHit, error) {
	if pattern == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sql := `SELECT c.id, c.file_id, f.path, c.language, c.kind, c.start_line, c.end_line,
			c.content, sym.fqn, 0::float8 AS score
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		LEFT JOIN symbols sym ON sym.id = c.symbol_id
		WHERE c.content ILIKE '%' || $1 || '%'
		ORDER BY f.path, c.start_line
		LIMIT $2`

	var hits []ChunkHit
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, pattern, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h ChunkHit
			if err := rows.Scan(&h.ChunkID, &h.FileID, &h.Path, &h.Language, &h.Kind,
				&h.StartLine, &h.EndLine, &h.Content, &h.SymbolFQN, &h.Score); err != nil {
				return err
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return hits, nil
}

// EmbeddingColumnDimension reads the vector column width of an embedding
// table from the catalog. The embedder compares it with the configured
// dimension before writing.
func (s *Store) EmbeddingColumnDimension(ctx context.Context, schema string, target EmbedTarget) (int, error) {
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2 AND a.attname = 'embedding'`,
		schema, target.Table,
	).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, cmerrors.InvalidInput(fmt.Sprintf("no embedding table %s.%s", schema, target.Table))
		}
		return 0, cmerrors.IOError("database", err)
	}
	return dim, nil
}

// BuildOrTsquery turns free text into an OR-joined tsquery string:
// non-trivial tokens joined with ' | '. OR is deliberate — AND-ing terms
// (the websearch default) starves multi-word natural-language queries of
// results. Returns "" when no token survives.
func BuildOrTsquery(query string) string {
	tokens := TokenizeQuery(query)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " | ")
}

// TokenizeQuery splits free text into lexeme-safe tokens: lowercased runs
// of letters, digits, and underscores, minimum two characters, deduped in
// order.
func TokenizeQuery(query string) []string {
	isWord := func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_'
	}
	var tokens []string
	seen := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		t := b.String()
		b.Reset()
		if len(t) < 2 || seen[t] {
			return
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	for _, r := range strings.ToLower(query) {
		if isWord(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
