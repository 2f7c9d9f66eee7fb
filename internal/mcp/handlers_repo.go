package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codemaphq/codemap/internal/service"
)

func (s *Server) handleListRepos(ctx context.Context, _ *mcp.CallToolRequest, _ ListReposInput) (
	*mcp.CallToolResult, ListReposOutput, error,
) {
	repos, err := s.svc.ListRepos(ctx)
	if err != nil {
		return nil, ListReposOutput{}, MapError(err)
	}
	out := ListReposOutput{Repos: make([]RepoSummary, 0, len(repos))}
	for _, r := range repos {
		summary := RepoSummary{
			Name:       r.Name,
			RootPath:   r.RootPath,
			Enabled:    r.Enabled,
			FileCount:  r.FileCount,
			ChunkCount: r.ChunkCount,
		}
		if r.LastIndexedAt != nil {
			summary.LastIndexedAt = r.LastIndexedAt.Format(time.RFC3339)
		}
		out.Repos = append(out.Repos, summary)
	}
	return nil, out, nil
}

func (s *Server) handleListFiles(ctx context.Context, _ *mcp.CallToolRequest, input ListFilesInput) (
	*mcp.CallToolResult, ListFilesOutput, error,
) {
	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}
	files, err := s.svc.ListFiles(ctx, input.Repo, input.Prefix, limit)
	if err != nil {
		return nil, ListFilesOutput{}, MapError(err)
	}
	out := ListFilesOutput{Files: make([]FileInfo, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, FileInfo{Path: f.Path, Language: f.Language, Size: f.Size})
	}
	return nil, out, nil
}

func (s *Server) handleReadFile(ctx context.Context, _ *mcp.CallToolRequest, input ReadFileInput) (
	*mcp.CallToolResult, ReadFileOutput, error,
) {
	if input.Path == "" {
		return nil, ReadFileOutput{}, NewInvalidParamsError("path is required")
	}
	content, err := s.svc.ReadFile(ctx, input.Repo, input.Path)
	if err != nil {
		return nil, ReadFileOutput{}, MapError(err)
	}
	return nil, ReadFileOutput{Path: input.Path, Content: content}, nil
}

func (s *Server) handleListTags(ctx context.Context, _ *mcp.CallToolRequest, input ListTagsInput) (
	*mcp.CallToolResult, ListTagsOutput, error,
) {
	tags, err := s.svc.ListTags(ctx, input.Repo)
	if err != nil {
		return nil, ListTagsOutput{}, MapError(err)
	}
	out := ListTagsOutput{Tags: make([]TagInfo, 0, len(tags))}
	for _, t := range tags {
		out.Tags = append(out.Tags, TagInfo{Name: t.Name, Rule: t.Rule})
	}
	return nil, out, nil
}

func (s *Server) handleTagEntity(ctx context.Context, _ *mcp.CallToolRequest, input TagEntityInput) (
	*mcp.CallToolResult, TagEntityOutput, error,
) {
	if input.Tag == "" {
		return nil, TagEntityOutput{}, NewInvalidParamsError("tag is required")
	}
	if err := s.svc.TagEntity(ctx, input.Repo, input.Tag, input.EntityType, input.EntityID); err != nil {
		return nil, TagEntityOutput{}, MapError(err)
	}
	return nil, TagEntityOutput{Tagged: true}, nil
}

func (s *Server) handleRepoAdd(ctx context.Context, _ *mcp.CallToolRequest, input RepoAddInput) (
	*mcp.CallToolResult, RepoAddOutput, error,
) {
	if input.Name == "" || input.RootPath == "" {
		return nil, RepoAddOutput{}, NewInvalidParamsError("name and root_path are required")
	}
	params := service.AddRepoParams{Name: input.Name, RootPath: input.RootPath}
	if input.AutoWatch {
		params.AutoWatch = &input.AutoWatch
	}
	if input.AutoSummaries {
		params.AutoSummaries = &input.AutoSummaries
	}
	repo, err := s.svc.AddRepo(ctx, params)
	if err != nil {
		return nil, RepoAddOutput{}, MapError(err)
	}
	return nil, RepoAddOutput{
		Name:       repo.Name,
		SchemaName: repo.SchemaName,
		JobQueued:  repo.AutoIndex,
	}, nil
}

func (s *Server) handleReindexFile(ctx context.Context, _ *mcp.CallToolRequest, input ReindexFileInput) (
	*mcp.CallToolResult, EnqueueOutput, error,
) {
	if input.Path == "" {
		return nil, EnqueueOutput{}, NewInvalidParamsError("path is required")
	}
	job, created, err := s.svc.EnqueueReindexFile(ctx, input.Repo, input.Path)
	if err != nil {
		return nil, EnqueueOutput{}, MapError(err)
	}
	return nil, EnqueueOutput{JobID: job.ID.String(), Created: created, Status: string(job.Status)}, nil
}

func (s *Server) handleReindexMany(ctx context.Context, _ *mcp.CallToolRequest, input ReindexManyInput) (
	*mcp.CallToolResult, EnqueueOutput, error,
) {
	if len(input.Ops) == 0 {
		return nil, EnqueueOutput{}, NewInvalidParamsError("ops must not be empty")
	}
	ops := make([]service.FileOpInput, 0, len(input.Ops))
	for _, op := range input.Ops {
		ops = append(ops, service.FileOpInput{Path: op.Path, Op: op.Op})
	}
	job, created, err := s.svc.EnqueueReindexMany(ctx, input.Repo, ops)
	if err != nil {
		return nil, EnqueueOutput{}, MapError(err)
	}
	return nil, EnqueueOutput{JobID: job.ID.String(), Created: created, Status: string(job.Status)}, nil
}

func (s *Server) handleDaemonStatus(ctx context.Context, _ *mcp.CallToolRequest, _ DaemonStatusInput) (
	*mcp.CallToolResult, DaemonStatusOutput, error,
) {
	daemons, err := s.svc.DaemonStatus(ctx)
	if err != nil {
		return nil, DaemonStatusOutput{}, MapError(err)
	}
	out := DaemonStatusOutput{Daemons: make([]DaemonInfo, 0, len(daemons))}
	for _, d := range daemons {
		out.Daemons = append(out.Daemons, DaemonInfo{
			InstanceID:    d.InstanceID,
			Hostname:      d.Hostname,
			Status:        d.Status,
			Version:       d.Version,
			LastHeartbeat: d.LastHeartbeat.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (
	*mcp.CallToolResult, IndexStatusOutput, error,
) {
	status, err := s.svc.GetIndexStatus(ctx, input.Repo)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	out := IndexStatusOutput{
		Repo:          status.Repo.Name,
		Files:         status.Stats.Files,
		Symbols:       status.Stats.Symbols,
		Chunks:        status.Stats.Chunks,
		Edges:         status.Stats.Edges,
		ResolvedEdges: status.Stats.ResolvedEdges,
		Documents:     status.Stats.Documents,
		Embedded:      status.Stats.ChunkEmbeddings,
		PendingEmbeds: status.PendingChunks,
	}
	if len(status.Jobs) > 0 {
		out.Jobs = make(map[string]int, len(status.Jobs))
		for st, n := range status.Jobs {
			out.Jobs[string(st)] = n
		}
	}
	if status.Repo.LastIndexedAt != nil {
		out.LastIndexedAt = status.Repo.LastIndexedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}
