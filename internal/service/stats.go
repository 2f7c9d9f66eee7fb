package service

import (
	"context"
	"fmt"
	"strings"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// RepoOverview is the per-repo block of the overview report.
type RepoOverview struct {
	Repo    *store.Repo      `json:"repo"`
	Stats   *store.RepoStats `json:"stats"`
	Summary string           `json:"summary,omitempty"`
}

// Overview assembles registry rows, table counts, and the stored
// repo-level summary for every enabled repo.
func (s *Service) Overview(ctx context.Context) ([]RepoOverview, error) {
	repos, err := s.store.ListRepos(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RepoOverview, 0, len(repos))
	for _, repo := range repos {
		entry := RepoOverview{Repo: repo}
		stats, err := s.store.CollectRepoStats(ctx, repo.SchemaName)
		if err != nil {
			s.logger.Warn("stats collection failed", "repo", repo.Name, "error", err)
		} else {
			entry.Stats = stats
		}
		if sum, err := s.store.GetSummary(ctx, repo.SchemaName, store.SummaryTargetRepo, 0); err == nil && sum != nil {
			entry.Summary = sum.Content
		}
		out = append(out, entry)
	}
	return out, nil
}

// DaemonStatus reports registered worker processes newest-heartbeat
// first.
func (s *Service) DaemonStatus(ctx context.Context) ([]*store.Daemon, error) {
	return s.store.ListDaemons(ctx)
}

// JobStats counts queue rows by status, optionally scoped to one repo.
func (s *Service) JobStats(ctx context.Context, repoName string) (map[store.JobStatus]int, error) {
	if repoName != "" {
		repo, err := s.ResolveRepo(ctx, repoName)
		if err != nil {
			return nil, err
		}
		repoName = repo.Name
	}
	return s.store.CountJobsByStatus(ctx, repoName)
}

// Capabilities describes what this deployment can do, so clients can
// adapt before issuing requests that would fail.
type Capabilities struct {
	Version            string   `json:"version"`
	EmbeddingProvider  string   `json:"embedding_provider"`
	EmbeddingModel     string   `json:"embedding_model"`
	EmbeddingDimension int      `json:"embedding_dimension"`
	LLMProvider        string   `json:"llm_provider,omitempty"`
	LLMModel           string   `json:"llm_model,omitempty"`
	SummariesEnabled   bool     `json:"summaries_enabled"`
	JobTypes           []string `json:"job_types"`
}

// GetCapabilities reports providers and the accepted job types.
func (s *Service) GetCapabilities() Capabilities {
	types := []store.JobType{
		store.JobFullIndex, store.JobReindexFile, store.JobReindexMany,
		store.JobEmbedMissing, store.JobEmbedChunk, store.JobEmbedSummaries,
		store.JobDocsScan, store.JobTagRulesSync,
		store.JobSummarizeMissing, store.JobSummarizeFiles,
		store.JobSummarizeSymbols, store.JobRegenerateSummary,
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return Capabilities{
		Version:            s.version,
		EmbeddingProvider:  s.cfg.Embeddings.Provider,
		EmbeddingModel:     s.cfg.Embeddings.Model,
		EmbeddingDimension: s.cfg.Embeddings.Dimension,
		LLMProvider:        s.cfg.LLM.Provider,
		LLMModel:           s.cfg.LLM.Model,
		SummariesEnabled:   s.cfg.LLM.Provider != "",
		JobTypes:           names,
	}
}

// IndexStatus is one repo's coverage report.
type IndexStatus struct {
	Repo          *store.Repo             `json:"repo"`
	Stats         *store.RepoStats        `json:"stats"`
	PendingChunks int64                   `json:"pending_chunk_embeddings"`
	Jobs          map[store.JobStatus]int `json:"jobs"`
}

// GetIndexStatus reports table counts, the chunk embedding backlog, and
// queue depth for one repo.
func (s *Service) GetIndexStatus(ctx context.Context, repoName string) (*IndexStatus, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.CollectRepoStats(ctx, repo.SchemaName)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountPendingEmbeddings(ctx, repo.SchemaName, store.TargetChunks)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.CountJobsByStatus(ctx, repo.Name)
	if err != nil {
		return nil, err
	}
	return &IndexStatus{Repo: repo, Stats: stats, PendingChunks: pending, Jobs: jobs}, nil
}

// embedTargets maps API table names to store targets.
var embedTargets = map[string]store.EmbedTarget{
	"chunks":    store.TargetChunks,
	"documents": store.TargetDocuments,
	"summaries": store.TargetSummaries,
}

func parseEmbedTarget(raw string) (store.EmbedTarget, error) {
	target, ok := embedTargets[strings.ToLower(raw)]
	if !ok {
		return store.EmbedTarget{}, cmerrors.InvalidInput(fmt.Sprintf("unknown embedding table %q", raw))
	}
	return target, nil
}

// EmbeddingTableStatus is one table's coverage in the status report.
type EmbeddingTableStatus struct {
	Table    string `json:"table"`
	Embedded int64  `json:"embedded"`
	Pending  int64  `json:"pending"`
}

// EmbeddingStatus reports embedded and pending row counts per table.
func (s *Service) EmbeddingStatus(ctx context.Context, repoName string) ([]EmbeddingTableStatus, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	out := make([]EmbeddingTableStatus, 0, len(embedTargets))
	for _, name := range []string{"chunks", "documents", "summaries"} {
		target := embedTargets[name]
		embedded, err := s.store.CountEmbeddings(ctx, repo.SchemaName, target)
		if err != nil {
			return nil, err
		}
		pending, err := s.store.CountPendingEmbeddings(ctx, repo.SchemaName, target)
		if err != nil {
			return nil, err
		}
		out = append(out, EmbeddingTableStatus{Table: name, Embedded: embedded, Pending: pending})
	}
	return out, nil
}

// VectorIndexStates reports the ANN index bookkeeping rows for a repo.
func (s *Service) VectorIndexStates(ctx context.Context, repoName string) ([]store.VectorIndexState, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	return s.store.VectorIndexStates(ctx, repo.SchemaName)
}

// IndexRecommendation compares one embedding table's ANN index against
// what maintenance would build today.
type IndexRecommendation struct {
	Table           string `json:"table"`
	Rows            int64  `json:"rows"`
	CurrentKind     string `json:"current_kind,omitempty"`
	RecommendedKind string `json:"recommended_kind"`
	RebuildAdvised  bool   `json:"rebuild_advised"`
	Reason          string `json:"reason,omitempty"`
}

// VectorIndexRecommendations reports, per embedding table, whether the
// ANN index should be rebuilt or switched to the other kind.
func (s *Service) VectorIndexRecommendations(ctx context.Context, repoName string) ([]IndexRecommendation, error) {
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	states, err := s.store.VectorIndexStates(ctx, repo.SchemaName)
	if err != nil {
		return nil, err
	}
	byTable := make(map[string]store.VectorIndexState, len(states))
	for _, st := range states {
		byTable[st.TableName] = st
	}

	out := make([]IndexRecommendation, 0, len(embedTargets))
	for _, name := range []string{"chunks", "documents", "summaries"} {
		target := embedTargets[name]
		rows, err := s.store.CountEmbeddings(ctx, repo.SchemaName, target)
		if err != nil {
			return nil, err
		}
		rec := IndexRecommendation{
			Table:           name,
			Rows:            rows,
			RecommendedKind: store.RecommendedIndexKind(rows),
		}
		state, built := byTable[target.Table]
		if built {
			rec.CurrentKind = state.IndexKind
		}
		switch {
		case rows == 0:
			// nothing to index
		case !built:
			rec.RebuildAdvised = true
			rec.Reason = "no index built yet"
		case state.IndexKind != rec.RecommendedKind:
			rec.RebuildAdvised = true
			rec.Reason = fmt.Sprintf("table crossed the %s threshold", rec.RecommendedKind)
		case state.RowsAtBuild > 0:
			grown := float64(rows-state.RowsAtBuild) / float64(state.RowsAtBuild)
			if grown >= s.cfg.Embeddings.RebuildThreshold {
				rec.RebuildAdvised = true
				rec.Reason = fmt.Sprintf("%.0f%% growth since last build", grown*100)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// SwitchVectorIndex rebuilds one table's ANN index with an explicit
// kind, overriding the row-count heuristic.
func (s *Service) SwitchVectorIndex(ctx context.Context, repoName, table, kind string) error {
	target, err := parseEmbedTarget(table)
	if err != nil {
		return err
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return err
	}
	if err := s.store.ForceVectorIndex(ctx, repo.SchemaName, target, strings.ToLower(kind)); err != nil {
		return err
	}
	s.logger.Info("vector index switched", "repo", repo.Name, "table", table, "kind", kind)
	return nil
}

// RebuildVectorIndex forces an ANN index rebuild for one table by
// running maintenance with a zero threshold.
func (s *Service) RebuildVectorIndex(ctx context.Context, repoName, table string) (bool, error) {
	target, err := parseEmbedTarget(table)
	if err != nil {
		return false, err
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return false, err
	}
	rebuilt, err := s.store.MaintainVectorIndex(ctx, repo.SchemaName, target, 0)
	if err != nil {
		return false, err
	}
	s.logger.Info("vector index maintenance", "repo", repo.Name, "table", table, "rebuilt", rebuilt)
	return rebuilt, nil
}

// EnqueueEmbedMissing queues a backfill of missing embeddings for one
// table.
func (s *Service) EnqueueEmbedMissing(ctx context.Context, repoName, table string) (*store.Job, bool, error) {
	target, err := parseEmbedTarget(table)
	if err != nil {
		return nil, false, err
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, false, err
	}
	jobType := store.JobEmbedMissing
	if target == store.TargetSummaries {
		jobType = store.JobEmbedSummaries
	}
	return s.store.Enqueue(ctx, store.JobSpec{
		RepoName: repo.Name,
		Type:     jobType,
		Payload:  map[string]string{"target": strings.ToLower(table)},
		DedupKey: jobType.DedupKey(repo.Name, strings.ToLower(table)),
	})
}

// ReembedTable drops a table's embeddings and queues a full re-embed.
// Used after switching a repo to a new embedding model.
func (s *Service) ReembedTable(ctx context.Context, repoName, table string) (*store.Job, error) {
	target, err := parseEmbedTarget(table)
	if err != nil {
		return nil, err
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, err
	}
	if err := s.store.TruncateEmbeddings(ctx, repo.SchemaName, target, true); err != nil {
		return nil, err
	}
	job, _, err := s.EnqueueEmbedMissing(ctx, repo.Name, table)
	if err != nil {
		return nil, err
	}
	s.logger.Info("re-embed queued", "repo", repo.Name, "table", table, "job_id", job.ID)
	return job, nil
}
