package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// TriggerJobParams describes a manual job enqueue.
type TriggerJobParams struct {
	Repo     string `json:"repo"`
	Type     string `json:"type" validate:"required"`
	Payload  any    `json:"payload,omitempty"`
	Priority int    `json:"priority,omitempty"`
	// Force bypasses dedup so an identical pending job does not absorb
	// the trigger.
	Force bool `json:"force,omitempty"`
}

// TriggerJob enqueues a job on behalf of an operator or tool call.
// Without Force the enqueue dedups against live jobs of the same type,
// so triggering twice returns the same job with created=false.
func (s *Service) TriggerJob(ctx context.Context, p TriggerJobParams) (*store.Job, bool, error) {
	jobType := store.JobType(strings.ToUpper(p.Type))
	if !jobType.Valid() {
		return nil, false, cmerrors.InvalidInput(fmt.Sprintf("unknown job type %q", p.Type))
	}
	repo, err := s.ResolveRepo(ctx, p.Repo)
	if err != nil {
		return nil, false, err
	}

	spec := store.JobSpec{
		RepoName: repo.Name,
		Type:     jobType,
		Payload:  p.Payload,
		Priority: p.Priority,
	}
	if !p.Force {
		spec.DedupKey = jobType.DedupKey(repo.Name, "")
	}
	job, created, err := s.store.Enqueue(ctx, spec)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("job triggered", "repo", repo.Name, "type", jobType,
		"job_id", job.ID, "created", created)
	return job, created, nil
}

// GetJob fetches a single job row by id.
func (s *Service) GetJob(ctx context.Context, id string) (*store.Job, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, cmerrors.InvalidInput(fmt.Sprintf("invalid job id %q", id))
	}
	return s.store.GetJob(ctx, jobID)
}

// ListJobsParams filters the queue listing.
type ListJobsParams struct {
	Repo     string
	Statuses []string
	Types    []string
	Limit    int
}

// ListJobs returns queue rows newest first.
func (s *Service) ListJobs(ctx context.Context, p ListJobsParams) ([]*store.Job, error) {
	f := store.JobFilter{Limit: p.Limit}
	if p.Repo != "" {
		repo, err := s.ResolveRepo(ctx, p.Repo)
		if err != nil {
			return nil, err
		}
		f.RepoName = repo.Name
	}
	for _, raw := range p.Statuses {
		f.Statuses = append(f.Statuses, store.JobStatus(strings.ToUpper(raw)))
	}
	for _, raw := range p.Types {
		jt := store.JobType(strings.ToUpper(raw))
		if !jt.Valid() {
			return nil, cmerrors.InvalidInput(fmt.Sprintf("unknown job type %q", raw))
		}
		f.Types = append(f.Types, jt)
	}
	return s.store.ListJobs(ctx, f)
}

// CancelJob requests cancellation. PENDING jobs flip to CANCELLED at
// once; CLAIMED jobs get cancel_requested set and the owning worker
// stops at its next probe. The returned status tells which happened.
func (s *Service) CancelJob(ctx context.Context, id string) (store.JobStatus, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return "", cmerrors.InvalidInput(fmt.Sprintf("invalid job id %q", id))
	}
	status, err := s.store.Cancel(ctx, jobID)
	if err != nil {
		return "", err
	}
	s.logger.Info("job cancel requested", "job_id", jobID, "status", status)
	return status, nil
}

// EnqueueReindexFile queues a single-file reindex, deduped per path.
func (s *Service) EnqueueReindexFile(ctx context.Context, repoName, path string) (*store.Job, bool, error) {
	if path == "" {
		return nil, false, cmerrors.InvalidInput("path is required")
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, false, err
	}
	return s.store.Enqueue(ctx, store.JobSpec{
		RepoName: repo.Name,
		Type:     store.JobReindexFile,
		Payload:  map[string]string{"path": path},
		DedupKey: store.JobReindexFile.DedupKey(repo.Name, path),
	})
}

// FileOpInput is one entry of a batched reindex request.
type FileOpInput struct {
	Path string `json:"path" validate:"required"`
	Op   string `json:"op" validate:"required,oneof=UPSERT DELETE"`
}

// EnqueueReindexMany queues a batched reindex of explicit file ops.
func (s *Service) EnqueueReindexMany(ctx context.Context, repoName string, ops []FileOpInput) (*store.Job, bool, error) {
	if len(ops) == 0 {
		return nil, false, cmerrors.InvalidInput("ops must not be empty")
	}
	repo, err := s.ResolveRepo(ctx, repoName)
	if err != nil {
		return nil, false, err
	}
	for _, op := range ops {
		kind := strings.ToUpper(op.Op)
		if kind != "UPSERT" && kind != "DELETE" {
			return nil, false, cmerrors.InvalidInput(fmt.Sprintf("unknown op %q for %s", op.Op, op.Path))
		}
	}
	return s.store.Enqueue(ctx, store.JobSpec{
		RepoName: repo.Name,
		Type:     store.JobReindexMany,
		Payload:  map[string]any{"ops": ops},
	})
}
