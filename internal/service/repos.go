package service

import (
	"context"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// AddRepoParams describes a registration request. Zero-valued optional
// flags fall back to server defaults: auto_index and auto_embed on,
// auto_watch and auto_summaries off.
type AddRepoParams struct {
	Name               string            `json:"name" validate:"required"`
	RootPath           string            `json:"root_path" validate:"required"`
	EmbeddingModel     string            `json:"embedding_model,omitempty"`
	EmbeddingDimension int               `json:"embedding_dimension,omitempty"`
	AutoIndex          *bool             `json:"auto_index,omitempty"`
	AutoEmbed          *bool             `json:"auto_embed,omitempty"`
	AutoWatch          *bool             `json:"auto_watch,omitempty"`
	AutoSummaries      *bool             `json:"auto_summaries,omitempty"`
	Config             map[string]string `json:"config,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// AddRepo registers a repository, provisions its schema, and (when
// auto_index is on) enqueues the first FULL_INDEX. Registration is the
// registry row plus the schema: if schema provisioning fails the
// registry row is rolled back so a retry starts clean.
func (s *Service) AddRepo(ctx context.Context, p AddRepoParams) (*store.Repo, error) {
	if err := store.ValidateRepoName(p.Name); err != nil {
		return nil, err
	}
	if p.RootPath == "" {
		return nil, cmerrors.InvalidInput("root_path is required")
	}

	model := p.EmbeddingModel
	if model == "" {
		model = s.cfg.Embeddings.Model
	}
	dimension := p.EmbeddingDimension
	if dimension <= 0 {
		dimension = s.cfg.Embeddings.Dimension
	}

	repo := &store.Repo{
		Name:               p.Name,
		SchemaName:         store.SchemaNameForRepo(s.store.SchemaPrefix(), p.Name),
		RootPath:           p.RootPath,
		Enabled:            true,
		AutoIndex:          boolOr(p.AutoIndex, true),
		AutoEmbed:          boolOr(p.AutoEmbed, true),
		AutoWatch:          boolOr(p.AutoWatch, false),
		AutoSummaries:      boolOr(p.AutoSummaries, false),
		EmbeddingModel:     model,
		EmbeddingDimension: dimension,
		Config:             p.Config,
	}

	created, err := s.store.CreateRepo(ctx, repo)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRepoSchema(ctx, created.SchemaName, created.EmbeddingDimension); err != nil {
		if delErr := s.store.DeleteRepo(ctx, created.Name, false); delErr != nil {
			s.logger.Error("rollback after schema provisioning failed",
				"repo", created.Name, "error", delErr)
		}
		return nil, err
	}

	if created.AutoIndex {
		spec := store.JobSpec{
			RepoName: created.Name,
			Type:     store.JobFullIndex,
			Payload:  map[string]string{"reason": "repo registered"},
			DedupKey: store.JobFullIndex.DedupKey(created.Name, ""),
		}
		if _, _, err := s.store.Enqueue(ctx, spec); err != nil {
			s.logger.Warn("initial index enqueue failed", "repo", created.Name, "error", err)
		}
	}

	s.logger.Info("repo registered", "repo", created.Name, "schema", created.SchemaName,
		"root", created.RootPath, "auto_index", created.AutoIndex)
	return created, nil
}

// ResolveRepo maps a caller-supplied name to a registry row. An empty
// name falls back to the configured default repo; an unknown name
// returns REPO_NOT_FOUND carrying fuzzy suggestions.
func (s *Service) ResolveRepo(ctx context.Context, name string) (*store.Repo, error) {
	if name == "" {
		name = s.cfg.DefaultRepo
	}
	if name == "" {
		return nil, cmerrors.InvalidInput("no repo given and no default_repo configured")
	}
	return s.store.ResolveRepo(ctx, name, s.cfg.Search.FuzzyThreshold, s.cfg.Search.MaxSuggestions)
}

// ListRepos returns every registry row.
func (s *Service) ListRepos(ctx context.Context) ([]*store.Repo, error) {
	return s.store.ListRepos(ctx)
}

// UpdateRepo applies a partial update to a registry row.
func (s *Service) UpdateRepo(ctx context.Context, name string, upd store.RepoUpdate) (*store.Repo, error) {
	repo, err := s.ResolveRepo(ctx, name)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateRepo(ctx, repo.Name, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("repo updated", "repo", updated.Name)
	return updated, nil
}

// RemoveRepo unregisters a repository. With dropSchema the per-repo
// schema and all indexed data go too; without it the data stays for a
// later re-register.
func (s *Service) RemoveRepo(ctx context.Context, name string, dropSchema bool) error {
	repo, err := s.ResolveRepo(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRepo(ctx, repo.Name, dropSchema); err != nil {
		return err
	}
	s.logger.Info("repo removed", "repo", repo.Name, "schema_dropped", dropSchema)
	return nil
}
