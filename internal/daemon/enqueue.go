package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/store"
)

// The daemon is the watcher's enqueue loop: batches become queue rows
// here and nowhere else.

// EnqueueReindexMany queues one debounced batch. The dedup key hashes
// the op set, so an identical still-pending batch is not duplicated
// while distinct batches queue freely.
func (d *Daemon) EnqueueReindexMany(ctx context.Context, repo *store.Repo, ops []indexer.FileOp) error {
	_, created, err := d.store.Enqueue(ctx, store.JobSpec{
		RepoName: repo.Name,
		Type:     store.JobReindexMany,
		Payload:  ReindexManyPayload{Ops: ops},
		DedupKey: store.JobReindexMany.DedupKey(repo.Name, opsDigest(ops)),
	})
	if err != nil {
		return err
	}
	if created {
		d.metrics.WatcherBatches.Inc()
	}
	return nil
}

// EnqueueFullIndex queues a full reindex, deduped per repo.
func (d *Daemon) EnqueueFullIndex(ctx context.Context, repo *store.Repo, reason string) error {
	_, _, err := d.store.Enqueue(ctx, store.JobSpec{
		RepoName: repo.Name,
		Type:     store.JobFullIndex,
		Payload:  FullIndexPayload{Reason: reason},
		DedupKey: store.JobFullIndex.DedupKey(repo.Name, ""),
	})
	return err
}

func opsDigest(ops []indexer.FileOp) string {
	data, _ := json.Marshal(ops)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
