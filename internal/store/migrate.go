package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate creates the control schema if needed and applies pending
// migrations. The migration runner connects with search_path pinned to
// the control schema, so its version table lives there too and several
// installations can share one database.
func (s *Store) Migrate(ctx context.Context) error {
	createSchema := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.cfg.ControlSchema}.Sanitize())
	if _, err := s.pool.Exec(ctx, createSchema); err != nil {
		return cmerrors.IOError("database", err)
	}

	connCfg, err := pgx.ParseConfig(s.cfg.DSN)
	if err != nil {
		return cmerrors.New(cmerrors.KindInvalidInput, "invalid database DSN", err)
	}
	connCfg.RuntimeParams["search_path"] = s.cfg.ControlSchema + ",public"

	db := stdlib.OpenDB(*connCfg)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return cmerrors.Internal("set migration dialect", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return cmerrors.IOError("database", err)
	}

	s.logger.Info("control schema ready", "schema", s.cfg.ControlSchema)
	return nil
}

// MigrationStatus returns the applied control-schema migration version.
func (s *Store) MigrationStatus(ctx context.Context) (int64, error) {
	connCfg, err := pgx.ParseConfig(s.cfg.DSN)
	if err != nil {
		return 0, cmerrors.New(cmerrors.KindInvalidInput, "invalid database DSN", err)
	}
	connCfg.RuntimeParams["search_path"] = s.cfg.ControlSchema + ",public"

	db := stdlib.OpenDB(*connCfg)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, cmerrors.Internal("set migration dialect", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return version, nil
}
