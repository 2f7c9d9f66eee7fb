package preflight

import (
	"context"
	"fmt"
	"time"
)

const dbCheckTimeout = 5 * time.Second

// CheckDatabase verifies PostgreSQL connectivity.
func (c *Checker) CheckDatabase(ctx context.Context) CheckResult {
	result := CheckResult{Name: "database", Required: true}
	if c.store == nil {
		result.Status = StatusFail
		result.Message = "no database configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		result.Details = "check db.dsn and that PostgreSQL is running"
		return result
	}
	result.Status = StatusPass
	result.Message = "connected"
	return result
}

// CheckVectorExtension verifies the pgvector extension is installed.
func (c *Checker) CheckVectorExtension(ctx context.Context) CheckResult {
	result := CheckResult{Name: "pgvector", Required: true}
	if c.store == nil {
		result.Status = StatusFail
		result.Message = "no database configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()
	var version string
	err := c.store.Pool().QueryRow(ctx,
		`SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&version)
	if err != nil {
		result.Status = StatusFail
		result.Message = "extension not installed"
		result.Details = "run CREATE EXTENSION vector; as a superuser"
		return result
	}
	result.Status = StatusPass
	result.Message = "installed (v" + version + ")"
	return result
}

// CheckMigrations verifies the control schema is at the current
// migration version.
func (c *Checker) CheckMigrations(ctx context.Context) CheckResult {
	result := CheckResult{Name: "migrations", Required: true}
	if c.store == nil {
		result.Status = StatusFail
		result.Message = "no database configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()
	version, err := c.store.MigrationStatus(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("status unavailable: %v", err)
		result.Details = "run codemap migrate"
		return result
	}
	if version == 0 {
		result.Status = StatusFail
		result.Message = "control schema not migrated"
		result.Details = "run codemap migrate"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("at version %d", version)
	return result
}
