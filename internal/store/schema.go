package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// maxIdentifierLen is PostgreSQL's identifier limit.
const maxIdentifierLen = 63

// SchemaNameForRepo derives the schema name for a repo: lowercase, every
// run of non [a-z0-9] collapsed to one underscore, prefixed, truncated to
// the identifier limit. "pg-go-app" with prefix "repo_" becomes
// "repo_pg_go_app".
func SchemaNameForRepo(prefix, repoName string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(repoName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := prefix + strings.Trim(b.String(), "_")
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return strings.TrimRight(name, "_")
}

// ValidateRepoName rejects names that cannot produce a usable schema.
func ValidateRepoName(name string) error {
	if strings.TrimSpace(name) == "" {
		return cmerrors.InvalidInput("repo name must not be empty")
	}
	if len(name) > 100 {
		return cmerrors.InvalidInput("repo name must be at most 100 characters")
	}
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return nil
		}
	}
	return cmerrors.InvalidInput("repo name must contain at least one letter or digit")
}

// repoSchemaDDL returns the statements creating every table of a repo
// schema. They run with search_path pinned to the schema, so names are
// unqualified. All statements are idempotent: re-running them against an
// existing schema is a no-op.
func repoSchemaDDL(dimension int) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS files (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			language TEXT NOT NULL DEFAULT '',
			sha TEXT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS symbols (
			id BIGSERIAL PRIMARY KEY,
			file_id BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			fqn TEXT NOT NULL,
			simple_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_line INT NOT NULL,
			end_line INT NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS symbols_fqn_idx ON symbols (fqn)`,
		`CREATE INDEX IF NOT EXISTS symbols_simple_name_idx ON symbols (simple_name)`,
		`CREATE INDEX IF NOT EXISTS symbols_file_idx ON symbols (file_id)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			file_id BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			symbol_id BIGINT REFERENCES symbols(id) ON DELETE SET NULL,
			start_line INT NOT NULL,
			end_line INT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'symbol',
			fts tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_fts_idx ON chunks USING GIN (fts)`,
		`CREATE INDEX IF NOT EXISTS chunks_file_idx ON chunks (file_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_content_hash_idx ON chunks (content_hash)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id BIGSERIAL PRIMARY KEY,
			from_symbol_id BIGINT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
			to_symbol_id BIGINT REFERENCES symbols(id) ON DELETE SET NULL,
			to_name TEXT,
			edge_type TEXT NOT NULL,
			evidence_file_id BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			evidence_line INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS edges_from_idx ON edges (from_symbol_id)`,
		`CREATE INDEX IF NOT EXISTS edges_to_idx ON edges (to_symbol_id)`,
		`CREATE INDEX IF NOT EXISTS edges_unresolved_idx ON edges (edge_type) WHERE to_symbol_id IS NULL`,
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			doc_type TEXT NOT NULL DEFAULT 'markdown',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			fts tsvector GENERATED ALWAYS AS (to_tsvector('simple', title || ' ' || content)) STORED
		)`,
		`CREATE INDEX IF NOT EXISTS documents_fts_idx ON documents USING GIN (fts)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id BIGSERIAL PRIMARY KEY,
			target_kind TEXT NOT NULL,
			target_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (target_kind, target_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id BIGINT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model_name TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS chunk_embeddings_hash_idx ON chunk_embeddings (content_hash)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_embeddings (
			document_id BIGINT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model_name TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS document_embeddings_hash_idx ON document_embeddings (content_hash)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS summary_embeddings (
			summary_id BIGINT PRIMARY KEY REFERENCES summaries(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model_name TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS summary_embeddings_hash_idx ON summary_embeddings (content_hash)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			rule TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS entity_tags (
			tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			entity_type TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			source TEXT NOT NULL DEFAULT 'MANUAL',
			PRIMARY KEY (tag_id, entity_type, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS entity_tags_entity_idx ON entity_tags (entity_type, entity_id)`,
		`CREATE TABLE IF NOT EXISTS index_state (
			id BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
			last_indexed_at TIMESTAMPTZ,
			last_scan_commit TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS vector_index_state (
			table_name TEXT PRIMARY KEY,
			index_kind TEXT NOT NULL DEFAULT '',
			rows_at_build BIGINT NOT NULL DEFAULT 0,
			built_at TIMESTAMPTZ
		)`,
	}
}

// CreateRepoSchema creates the schema and its tables. Idempotent; the
// embedding dimension is frozen into the vector columns at first creation
// and ignored on re-runs.
func (s *Store) CreateRepoSchema(ctx context.Context, schema string, dimension int) error {
	if dimension < 1 {
		return cmerrors.InvalidInput("embedding dimension must be positive")
	}
	create := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return cmerrors.IOError("database", err)
	}

	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		for _, stmt := range repoSchemaDDL(dimension) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return cmerrors.New(cmerrors.KindSchemaConflict,
					fmt.Sprintf("schema %s initialization failed", schema), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("repo schema ready", "schema", schema, "dimension", dimension)
	return nil
}

// DropRepoSchema drops a repo schema and everything in it.
func (s *Store) DropRepoSchema(ctx context.Context, schema string) error {
	drop := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{schema}.Sanitize())
	if _, err := s.pool.Exec(ctx, drop); err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// SchemaExists checks the catalog for a schema.
func (s *Store) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", schema,
	).Scan(&exists)
	if err != nil {
		return false, cmerrors.IOError("database", err)
	}
	return exists, nil
}

// ResolveRepo resolves a repo name to its registration. Unknown names
// return RepoNotFound carrying up to maxSuggestions fuzzy candidates with
// similarity at or above threshold, sorted best-first.
func (s *Store) ResolveRepo(ctx context.Context, name string, threshold float64, maxSuggestions int) (*Repo, error) {
	repo, err := s.GetRepoByName(ctx, name)
	if err == nil {
		return repo, nil
	}
	if !cmerrors.Is(err, cmerrors.KindRepoNotFound) {
		return nil, err
	}

	all, listErr := s.ListRepos(ctx)
	if listErr != nil || len(all) == 0 {
		return nil, err
	}

	type scored struct {
		repo *Repo
		sim  float64
	}
	var candidates []scored
	for _, r := range all {
		sim := NameSimilarity(name, r.Name)
		if sim >= threshold {
			candidates = append(candidates, scored{repo: r, sim: sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if maxSuggestions > 0 && len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}

	suggestions := make([]cmerrors.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		sug := cmerrors.Suggestion{
			Name:       c.repo.Name,
			Similarity: c.sim,
			FileCount:  c.repo.FileCount,
		}
		if c.repo.LastIndexedAt != nil {
			sug.LastIndexedAt = c.repo.LastIndexedAt.Format(time.RFC3339)
		}
		suggestions = append(suggestions, sug)
	}

	if cmErr, ok := cmerrors.As(err); ok {
		return nil, cmErr.WithSuggestions(suggestions)
	}
	return nil, err
}
