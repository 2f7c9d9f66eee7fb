// Package daemon runs the background worker: it claims jobs from the
// durable queue, executes the indexing, embedding, tagging, and
// summarization pipeline, watches repository roots, and keeps the
// daemon registry healthy. One process holds the pidfile lock; work
// distribution across processes happens entirely through the queue's
// SKIP LOCKED claims.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/llm"
	"github.com/codemaphq/codemap/internal/metrics"
	"github.com/codemaphq/codemap/internal/store"
	"github.com/codemaphq/codemap/internal/watcher"
)

// cancelPollEvery is how often a running handler rechecks
// cancel_requested.
const cancelPollEvery = 2 * time.Second

// shutdownGrace bounds how long Stop waits for in-flight jobs.
const shutdownGrace = 30 * time.Second

// Daemon is the worker supervisor.
type Daemon struct {
	store      *store.Store
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	indexer    *indexer.Indexer
	embedder   *embed.Service
	completer  llm.Completer
	watchMgr   *watcher.Manager
	pidfile    *PIDFile
	instanceID string
	version    string

	handlers map[store.JobType]func(ctx context.Context, job *store.Job, repo *store.Repo) error
	wg       sync.WaitGroup
}

// Options carries the daemon's collaborators. Completer may be nil
// when summarization is not configured; summarize jobs then fail
// non-retryably.
type Options struct {
	Store     *store.Store
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Indexer   *indexer.Indexer
	Embedder  *embed.Service
	Completer llm.Completer
	Version   string
}

// New wires a daemon. The watch manager shares the indexer's scanner.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil || opts.Config == nil || opts.Indexer == nil || opts.Embedder == nil {
		return nil, cmerrors.InvalidInput("daemon requires store, config, indexer, and embedder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	hostname, _ := os.Hostname()
	d := &Daemon{
		store:      opts.Store,
		cfg:        opts.Config,
		logger:     logger,
		metrics:    m,
		indexer:    opts.Indexer,
		embedder:   opts.Embedder,
		completer:  opts.Completer,
		pidfile:    NewPIDFile(opts.Config.Daemon.PIDFilePath()),
		instanceID: fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8]),
		version:    opts.Version,
	}
	d.watchMgr = watcher.NewManager(d, opts.Indexer.Scanner(), opts.Config.Watcher, logger)
	d.handlers = map[store.JobType]func(context.Context, *store.Job, *store.Repo) error{
		store.JobFullIndex:         d.handleFullIndex,
		store.JobReindexFile:       d.handleReindexFile,
		store.JobReindexMany:       d.handleReindexMany,
		store.JobDocsScan:          d.handleDocsScan,
		store.JobEmbedMissing:      d.handleEmbed,
		store.JobEmbedChunk:        d.handleEmbed,
		store.JobEmbedSummaries:    d.handleEmbedSummaries,
		store.JobTagRulesSync:      d.handleTagRulesSync,
		store.JobSummarizeMissing:  d.handleSummarizeMissing,
		store.JobSummarizeFiles:    d.handleSummarizeFiles,
		store.JobSummarizeSymbols:  d.handleSummarizeSymbols,
		store.JobRegenerateSummary: d.handleRegenerateSummary,
	}
	return d, nil
}

// InstanceID identifies this daemon in the registry and on claims.
func (d *Daemon) InstanceID() string { return d.instanceID }

// Metrics exposes the collectors for the HTTP server.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// Run registers the instance and works the queue until ctx ends, then
// shuts down gracefully: claim loops stop, in-flight jobs get a grace
// period, owned claims release back to pending.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.pidfile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidfile.Release(); err != nil {
			d.logger.Warn("pidfile release failed", "error", err)
		}
	}()

	hostname, _ := os.Hostname()
	err := d.store.RegisterDaemon(ctx, &store.Daemon{
		InstanceID: d.instanceID,
		Hostname:   hostname,
		PID:        os.Getpid(),
		Status:     "RUNNING",
		Version:    d.version,
	})
	if err != nil {
		return err
	}
	d.logger.Info("daemon started",
		"instance_id", d.instanceID,
		"worker_mode", d.cfg.Daemon.WorkerMode,
		"max_workers", d.cfg.Daemon.MaxWorkers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(1)
	go d.healthLoop(runCtx)

	if err := d.startWatches(runCtx); err != nil {
		d.logger.Warn("watch startup incomplete", "error", err)
	}
	d.startClaimLoops(runCtx)

	<-ctx.Done()
	d.logger.Info("daemon stopping")
	cancel()
	d.watchMgr.Stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		d.logger.Warn("shutdown grace elapsed with jobs in flight")
	}

	// Release with a fresh context: ctx is already cancelled.
	relCtx, relCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer relCancel()
	if n, err := d.store.ReleaseOwnedBy(relCtx, []string{d.instanceID}, "daemon shutdown", d.cfg.Daemon.RetryBackoffBase()); err != nil {
		d.logger.Warn("claim release failed", "error", err)
	} else if n > 0 {
		d.logger.Info("released claimed jobs", "count", n)
	}
	if err := d.store.MarkDaemonStopped(relCtx, d.instanceID); err != nil {
		d.logger.Warn("daemon deregistration failed", "error", err)
	}
	d.logger.Info("daemon stopped")
	return nil
}

// startWatches begins following every enabled auto_watch repository.
func (d *Daemon) startWatches(ctx context.Context) error {
	repos, err := d.store.ListRepos(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, repo := range repos {
		if !repo.Enabled || !repo.AutoWatch {
			continue
		}
		if err := d.watchMgr.Watch(ctx, repo); err != nil {
			d.logger.Warn("watch failed", "repo", repo.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// startClaimLoops spawns workers per the configured mode: "single" is
// one claimer for everything, "pool" runs max_workers claimers, and
// "per_repo" pins one claimer to each enabled repository.
func (d *Daemon) startClaimLoops(ctx context.Context) {
	base := store.ClaimOptions{
		PerRepoLimit:  d.cfg.Daemon.MaxConcurrentPerRepo,
		PerTypeLimits: d.cfg.Daemon.PerTypeLimits,
	}
	switch d.cfg.Daemon.WorkerMode {
	case "per_repo":
		repos, err := d.store.ListRepos(ctx)
		if err != nil {
			d.logger.Error("repo listing failed, falling back to single worker", "error", err)
			d.spawnClaimLoop(ctx, d.instanceID+"-w0", base)
			return
		}
		i := 0
		for _, repo := range repos {
			if !repo.Enabled {
				continue
			}
			opts := base
			opts.RepoNames = []string{repo.Name}
			d.spawnClaimLoop(ctx, fmt.Sprintf("%s-w%d", d.instanceID, i), opts)
			i++
		}
	case "pool":
		workers := d.cfg.Daemon.MaxWorkers
		if workers <= 0 {
			workers = 4
		}
		for i := 0; i < workers; i++ {
			d.spawnClaimLoop(ctx, fmt.Sprintf("%s-w%d", d.instanceID, i), base)
		}
	default: // "single"
		d.spawnClaimLoop(ctx, d.instanceID+"-w0", base)
	}
}

func (d *Daemon) spawnClaimLoop(ctx context.Context, workerID string, opts store.ClaimOptions) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.Daemon.PollEvery())
		defer ticker.Stop()
		for {
			claimed := d.claimOne(ctx, workerID, opts)
			if ctx.Err() != nil {
				return
			}
			if claimed {
				// Something was runnable; try again immediately.
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *Daemon) claimOne(ctx context.Context, workerID string, opts store.ClaimOptions) bool {
	job, found, err := d.store.Claim(ctx, workerID, opts)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("claim failed", "worker", workerID, "error", err)
		}
		return false
	}
	if !found {
		return false
	}
	d.runJob(ctx, job)
	return true
}

// runJob executes one claimed job and records its terminal state.
func (d *Daemon) runJob(ctx context.Context, job *store.Job) {
	start := time.Now()
	d.metrics.JobsClaimed.Inc()
	logger := d.logger.With("job_id", job.ID, "job_type", job.Type, "repo", job.RepoName)
	logger.Info("job started", "attempt", job.Attempts)

	jctx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.JobTimeout())
	defer cancel()

	err := d.execute(jctx, job)
	d.metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if cErr := d.store.Complete(ctx, job.ID); cErr != nil {
			logger.Error("job completion failed", "error", cErr)
			return
		}
		d.metrics.JobsCompleted.WithLabelValues(string(job.Type), string(store.JobDone)).Inc()
		logger.Info("job done", "duration", time.Since(start).Round(time.Millisecond))
		d.enqueueFollowUps(ctx, job)

	case cmerrors.Is(err, cmerrors.KindCancelled):
		if mErr := d.store.MarkCancelled(ctx, job.ID, err.Error()); mErr != nil {
			logger.Error("cancel recording failed", "error", mErr)
		}
		d.metrics.JobsCompleted.WithLabelValues(string(job.Type), string(store.JobCancelled)).Inc()
		logger.Info("job cancelled")

	default:
		retryable := job.Type.IdempotentOnRetry() &&
			(cmerrors.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded))
		status, fErr := d.store.Fail(ctx, job.ID, err, retryable, d.cfg.Daemon.RetryBackoffBase())
		if fErr != nil {
			logger.Error("failure recording failed", "error", fErr)
			return
		}
		d.metrics.JobsCompleted.WithLabelValues(string(job.Type), string(status)).Inc()
		logger.Warn("job failed", "error", err, "retryable", retryable, "status", status)
	}
}

func (d *Daemon) execute(ctx context.Context, job *store.Job) error {
	handler, ok := d.handlers[job.Type]
	if !ok {
		return cmerrors.InvalidInput(fmt.Sprintf("unknown job type %q", job.Type))
	}
	repo, err := d.store.GetRepoByName(ctx, job.RepoName)
	if err != nil {
		return err
	}
	return handler(ctx, job, repo)
}

// enqueueFollowUps schedules the dependency-graph successors of a
// finished job. Dedup keys keep repeated completions from stacking
// duplicate pending work.
func (d *Daemon) enqueueFollowUps(ctx context.Context, job *store.Job) {
	repo, err := d.store.GetRepoByName(ctx, job.RepoName)
	if err != nil {
		d.logger.Warn("follow-up lookup failed", "repo", job.RepoName, "error", err)
		return
	}
	for _, spec := range followUpsFor(repo, job.Type) {
		if _, created, err := d.store.Enqueue(ctx, spec); err != nil {
			d.logger.Warn("follow-up enqueue failed",
				"repo", repo.Name, "job_type", spec.Type, "error", err)
		} else if created {
			d.logger.Debug("follow-up enqueued", "repo", repo.Name, "job_type", spec.Type)
		}
	}
}

// cancellationProbe returns a cheap cancelled() func for handlers. It
// rate-limits the queue lookup and reports true permanently once the
// flag or the context trips.
func (d *Daemon) cancellationProbe(ctx context.Context, id uuid.UUID) func() bool {
	var last time.Time
	cancelled := false
	return func() bool {
		if cancelled {
			return true
		}
		if ctx.Err() != nil {
			cancelled = true
			return true
		}
		if time.Since(last) < cancelPollEvery {
			return false
		}
		last = time.Now()
		requested, err := d.store.CancelRequested(ctx, id)
		if err != nil {
			return false
		}
		cancelled = requested
		return cancelled
	}
}
