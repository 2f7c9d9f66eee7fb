package daemon

import (
	"context"
	"fmt"

	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/store"
)

func (d *Daemon) handleFullIndex(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload FullIndexPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	stats, err := d.indexer.FullIndex(ctx, repo, d.cancellationProbe(ctx, job.ID))
	if err != nil {
		return err
	}
	d.metrics.FilesIndexed.Add(float64(stats.FilesIndexed))
	d.metrics.EdgesResolved.Add(float64(stats.EdgesResolved))
	d.logger.Info("full index finished",
		"repo", repo.Name,
		"reason", payload.Reason,
		"scanned", stats.FilesScanned,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"deleted", stats.FilesDeleted,
		"failed", stats.FilesFailed,
		"edges_resolved", stats.EdgesResolved,
		"duration", stats.Duration)
	return nil
}

func (d *Daemon) handleReindexFile(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload ReindexFilePayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	stats, err := d.indexer.ReindexFile(ctx, repo, payload.Path, indexer.OpUpsert)
	if err != nil {
		return err
	}
	d.metrics.FilesIndexed.Add(float64(stats.FilesIndexed))
	return nil
}

func (d *Daemon) handleReindexMany(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload ReindexManyPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	stats, err := d.indexer.ReindexMany(ctx, repo, payload.Ops)
	if err != nil {
		return err
	}
	d.metrics.FilesIndexed.Add(float64(stats.FilesIndexed))
	d.metrics.EdgesResolved.Add(float64(stats.EdgesResolved))
	d.logger.Info("reindex batch finished",
		"repo", repo.Name,
		"ops", len(payload.Ops),
		"indexed", stats.FilesIndexed,
		"deleted", stats.FilesDeleted,
		"failed", stats.FilesFailed)
	return nil
}

func (d *Daemon) handleDocsScan(ctx context.Context, job *store.Job, repo *store.Repo) error {
	stats, err := d.indexer.DocsScan(ctx, repo, d.cancellationProbe(ctx, job.ID))
	if err != nil {
		return err
	}
	d.logger.Info("docs scan finished",
		"repo", repo.Name,
		"scanned", stats.FilesScanned,
		"updated", stats.FilesIndexed,
		"deleted", stats.FilesDeleted)
	return nil
}

// handleEmbed serves EMBED_MISSING and EMBED_CHUNK. A targeted chunk
// job rides the same pending scan: the chunk in question has no
// embedding row yet, so it is part of the pending set.
func (d *Daemon) handleEmbed(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload EmbedPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	target, ok := embedTargetByName(payload.Target)
	if !ok {
		return fmt.Errorf("unknown embed target %q", payload.Target)
	}
	return d.runEmbed(ctx, job, repo, target, payload.Model)
}

func (d *Daemon) handleEmbedSummaries(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload EmbedPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	return d.runEmbed(ctx, job, repo, store.TargetSummaries, payload.Model)
}

func (d *Daemon) runEmbed(ctx context.Context, job *store.Job, repo *store.Repo, target store.EmbedTarget, model string) error {
	if model == "" {
		model = repo.EmbeddingModel
	}
	report, err := d.embedder.EmbedMissing(ctx, repo.SchemaName, target, model, d.cancellationProbe(ctx, job.ID))
	if err != nil {
		return err
	}
	d.metrics.EmbedBatches.Add(float64(report.Batches))
	d.metrics.EmbedVectors.Add(float64(report.Embedded))
	d.metrics.EmbedReused.Add(float64(report.Reused))
	d.logger.Info("embedding finished",
		"repo", repo.Name,
		"target", target.Table,
		"embedded", report.Embedded,
		"reused", report.Reused,
		"batches", report.Batches,
		"index_rebuilt", report.Rebuilt)
	return nil
}
