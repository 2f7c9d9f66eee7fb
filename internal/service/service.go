// Package service is the operation layer shared by the HTTP API and
// the MCP server: repository registry management, job control,
// retrieval, and stats. Both surfaces call the same methods so their
// semantics cannot drift apart.
package service

import (
	"log/slog"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/metrics"
	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/store"
)

// Service bundles the collaborators every surface operation needs.
type Service struct {
	store   *store.Store
	engine  *search.Engine
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	version string
}

// New wires a service. The engine may be nil only in tooling that
// never searches (migrations, registry scripts).
func New(st *store.Store, engine *search.Engine, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, version string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{store: st, engine: engine, cfg: cfg, metrics: m, logger: logger, version: version}
}

// Store exposes the underlying store for surfaces that need raw reads.
func (s *Service) Store() *store.Store { return s.store }

// Version reports the build version.
func (s *Service) Version() string { return s.version }

// Metrics exposes the collectors (for the /metrics endpoint).
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }
