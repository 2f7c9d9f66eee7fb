package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

const repoColumns = `id, name, schema_name, root_path, enabled, auto_index, auto_embed, auto_watch,
	auto_summaries, embedding_model, embedding_dimension, config, file_count, chunk_count,
	last_indexed_at, created_at, updated_at`

func scanRepo(row pgx.Row) (*Repo, error) {
	var r Repo
	err := row.Scan(
		&r.ID, &r.Name, &r.SchemaName, &r.RootPath, &r.Enabled, &r.AutoIndex, &r.AutoEmbed,
		&r.AutoWatch, &r.AutoSummaries, &r.EmbeddingModel, &r.EmbeddingDimension, &r.Config,
		&r.FileCount, &r.ChunkCount, &r.LastIndexedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRepo inserts a registry row. The schema_name unique constraint is
// the ownership record: a second repo claiming the same schema fails with
// SchemaConflict.
func (s *Store) CreateRepo(ctx context.Context, r *Repo) (*Repo, error) {
	if r.Config == nil {
		r.Config = map[string]string{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (name, schema_name, root_path, enabled, auto_index,
		auto_embed, auto_watch, auto_summaries, embedding_model, embedding_dimension, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s`, s.controlTable("repos"), repoColumns)

	created, err := scanRepo(s.pool.QueryRow(ctx, query,
		r.Name, r.SchemaName, r.RootPath, r.Enabled, r.AutoIndex,
		r.AutoEmbed, r.AutoWatch, r.AutoSummaries, r.EmbeddingModel, r.EmbeddingDimension, r.Config,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, cmerrors.SchemaConflict(r.SchemaName, r.Name)
		}
		return nil, cmerrors.IOError("database", err)
	}
	return created, nil
}

// GetRepoByName fetches one registry row. Missing repos come back as
// RepoNotFound without suggestions; ResolveRepo adds them.
func (s *Store) GetRepoByName(ctx context.Context, name string) (*Repo, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = $1", repoColumns, s.controlTable("repos"))
	r, err := scanRepo(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cmerrors.RepoNotFound(name)
		}
		return nil, cmerrors.IOError("database", err)
	}
	return r, nil
}

// ListRepos returns all registered repositories ordered by name.
func (s *Store) ListRepos(ctx context.Context) ([]*Repo, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY name", repoColumns, s.controlTable("repos"))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	defer rows.Close()

	var repos []*Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, cmerrors.IOError("database", err)
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return repos, nil
}

// RepoUpdate is a partial registry update; nil fields are left unchanged.
type RepoUpdate struct {
	RootPath      *string
	Enabled       *bool
	AutoIndex     *bool
	AutoEmbed     *bool
	AutoWatch     *bool
	AutoSummaries *bool
	Config        map[string]string
}

// UpdateRepo applies a partial update and returns the fresh row.
func (s *Store) UpdateRepo(ctx context.Context, name string, upd RepoUpdate) (*Repo, error) {
	query := fmt.Sprintf(`UPDATE %s SET
		root_path      = COALESCE($2, root_path),
		enabled        = COALESCE($3, enabled),
		auto_index     = COALESCE($4, auto_index),
		auto_embed     = COALESCE($5, auto_embed),
		auto_watch     = COALESCE($6, auto_watch),
		auto_summaries = COALESCE($7, auto_summaries),
		config         = COALESCE($8, config),
		updated_at     = now()
		WHERE name = $1
		RETURNING %s`, s.controlTable("repos"), repoColumns)

	var cfg any
	if upd.Config != nil {
		cfg = upd.Config
	}
	r, err := scanRepo(s.pool.QueryRow(ctx, query,
		name, upd.RootPath, upd.Enabled, upd.AutoIndex, upd.AutoEmbed, upd.AutoWatch, upd.AutoSummaries, cfg,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cmerrors.RepoNotFound(name)
		}
		return nil, cmerrors.IOError("database", err)
	}
	return r, nil
}

// DeleteRepo removes the registry row and, when dropSchema is set, drops
// the repo schema in the same transaction.
func (s *Store) DeleteRepo(ctx context.Context, name string, dropSchema bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var schemaName string
	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1 RETURNING schema_name", s.controlTable("repos"))
	if err := tx.QueryRow(ctx, query, name).Scan(&schemaName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cmerrors.RepoNotFound(name)
		}
		return cmerrors.IOError("database", err)
	}

	if dropSchema {
		drop := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{schemaName}.Sanitize())
		if _, err := tx.Exec(ctx, drop); err != nil {
			return cmerrors.IOError("database", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return cmerrors.IOError("database", err)
	}
	s.logger.Info("repo deleted", "repo", name, "schema_dropped", dropSchema)
	return nil
}

// SetRepoStats records post-index statistics on the registry row so
// list/suggestion responses stay cheap.
func (s *Store) SetRepoStats(ctx context.Context, name string, fileCount, chunkCount int) error {
	query := fmt.Sprintf(`UPDATE %s SET file_count = $2, chunk_count = $3,
		last_indexed_at = now(), updated_at = now() WHERE name = $1`, s.controlTable("repos"))
	tag, err := s.pool.Exec(ctx, query, name, fileCount, chunkCount)
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	if tag.RowsAffected() == 0 {
		return cmerrors.RepoNotFound(name)
	}
	return nil
}
