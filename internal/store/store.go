package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// Store wraps one pgx pool shared by the control plane and every repo
// schema. Repo-scoped statements run through WithSchema, which pins the
// search_path for the duration of a transaction.
type Store struct {
	pool   *pgxpool.Pool
	cfg    config.DBConfig
	logger *slog.Logger
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, cmerrors.New(cmerrors.KindInvalidInput, "invalid database DSN", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, cmerrors.IOError("database", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With("component", "store"),
	}, nil
}

// Pool exposes the underlying pool for callers that need raw access
// (health checks, metrics collectors).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// ControlSchema returns the configured control schema name.
func (s *Store) ControlSchema() string {
	return s.cfg.ControlSchema
}

// SchemaPrefix returns the configured per-repo schema prefix.
func (s *Store) SchemaPrefix() string {
	return s.cfg.SchemaPrefix
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// controlTable returns the quoted, schema-qualified name of a
// control-schema table for interpolation into SQL text.
func (s *Store) controlTable(name string) string {
	return pgx.Identifier{s.cfg.ControlSchema, name}.Sanitize()
}

// repoTable returns the quoted, schema-qualified name of a repo-schema
// table. Used only in DDL and maintenance statements that cannot rely on
// search_path.
func repoTable(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// WithSchema runs fn inside a transaction whose search_path is pinned to
// the given repo schema. SET LOCAL scopes the change to the transaction,
// so the connection returns to the pool clean on commit and rollback
// alike.
func (s *Store) WithSchema(ctx context.Context, schema string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	setPath := fmt.Sprintf("SET LOCAL search_path TO %s, public", pgx.Identifier{schema}.Sanitize())
	if _, err := tx.Exec(ctx, setPath); err != nil {
		return cmerrors.IOError("database", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
