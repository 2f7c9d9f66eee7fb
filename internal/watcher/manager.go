package watcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/scanner"
	"github.com/codemaphq/codemap/internal/store"
)

// Enqueuer is where the manager hands off work. The daemon implements
// it over the job queue.
type Enqueuer interface {
	EnqueueReindexMany(ctx context.Context, repo *store.Repo, ops []indexer.FileOp) error
	EnqueueFullIndex(ctx context.Context, repo *store.Repo, reason string) error
}

// Manager runs one Watcher per auto_watch repository and converts
// debounced batches into queued jobs.
type Manager struct {
	enq     Enqueuer
	scanner *scanner.Scanner
	cfg     config.WatcherConfig
	logger  *slog.Logger

	mu      sync.Mutex
	watches map[string]*repoWatch
	wg      sync.WaitGroup
}

type repoWatch struct {
	w      *Watcher
	cancel context.CancelFunc
}

// NewManager builds a manager sharing the indexer's scanner so both
// agree on what is ignorable.
func NewManager(enq Enqueuer, sc *scanner.Scanner, cfg config.WatcherConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		enq:     enq,
		scanner: sc,
		cfg:     cfg,
		logger:  logger,
		watches: make(map[string]*repoWatch),
	}
}

// Watch starts following a repository root. Watching an already
// watched repo restarts its watcher (the root path may have changed).
func (m *Manager) Watch(ctx context.Context, repo *store.Repo) error {
	m.Unwatch(repo.Name)

	opts := scanner.ScanOptions{
		RootDir:          repo.RootPath,
		Ignore:           m.cfg.Ignore,
		RespectGitignore: true,
	}
	ignore := func(rel string) bool {
		return m.scanner.ShouldIgnore(repo.RootPath, rel, opts)
	}
	w, err := New(repo.RootPath, m.cfg.DebounceWindow(), ignore, m.logger.With("repo", repo.Name))
	if err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	if err := w.Start(wctx); err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	m.watches[repo.Name] = &repoWatch{w: w, cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(wctx, w, repo)
	m.logger.Info("watching repository", "repo", repo.Name, "root", repo.RootPath)
	return nil
}

// Unwatch stops following a repository. Unknown names are a no-op.
func (m *Manager) Unwatch(name string) {
	m.mu.Lock()
	rw, ok := m.watches[name]
	if ok {
		delete(m.watches, name)
	}
	m.mu.Unlock()
	if ok {
		rw.cancel()
		rw.w.Stop()
	}
}

// Watching lists the currently watched repository names.
func (m *Manager) Watching() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.watches))
	for name := range m.watches {
		names = append(names, name)
	}
	return names
}

// Stop ends every watch and waits for the batch loops to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	watches := m.watches
	m.watches = make(map[string]*repoWatch)
	m.mu.Unlock()
	for _, rw := range watches {
		rw.cancel()
		rw.w.Stop()
	}
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, w *Watcher, repo *store.Repo) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			m.logger.Warn("watch error", "repo", repo.Name, "error", err)
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			m.dispatch(ctx, repo, batch)
		}
	}
}

// dispatch turns one debounced batch into a queued job. A .gitignore
// edit invalidates the cached matchers and escalates to a full index,
// since previously ignored or newly ignored files are not in the batch.
func (m *Manager) dispatch(ctx context.Context, repo *store.Repo, batch []FileEvent) {
	ops := make([]indexer.FileOp, 0, len(batch))
	gitignoreChanged := false
	for _, ev := range batch {
		switch ev.Op {
		case OpGitignoreChange:
			gitignoreChanged = true
		case OpCreate, OpModify:
			ops = append(ops, indexer.FileOp{Path: ev.Path, Op: indexer.OpUpsert})
		case OpDelete:
			ops = append(ops, indexer.FileOp{Path: ev.Path, Op: indexer.OpDelete})
		}
	}

	if gitignoreChanged {
		m.scanner.InvalidateCache()
		if err := m.enq.EnqueueFullIndex(ctx, repo, "gitignore changed"); err != nil {
			m.logger.Error("full index enqueue failed", "repo", repo.Name, "error", err)
		}
		return
	}
	if len(ops) == 0 {
		return
	}
	if err := m.enq.EnqueueReindexMany(ctx, repo, ops); err != nil {
		m.logger.Error("reindex enqueue failed", "repo", repo.Name, "error", err)
		return
	}
	m.logger.Debug("reindex batch enqueued", "repo", repo.Name, "files", len(ops))
}
