// Package watcher turns filesystem activity under repository roots
// into reindex jobs. Raw fsnotify events are debounced and coalesced
// per path, then flushed as one batch; the manager converts each batch
// into a single queued reindex job. The watcher never touches the
// database itself.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// Op is a coalesced file operation.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
	// OpGitignoreChange marks a .gitignore edit anywhere under the
	// root. The ignore set changed, so incremental reindexing of the
	// touched paths is not enough.
	OpGitignoreChange
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced event. Path is relative to the watched
// root, slash-separated.
type FileEvent struct {
	Path string
	Op   Op
}

// Watcher follows one directory tree recursively through fsnotify.
type Watcher struct {
	root     string
	fs       *fsnotify.Watcher
	deb      *Debouncer
	ignore   func(rel string) bool
	logger   *slog.Logger
	errs     chan error
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New prepares a watcher for root. The ignore func receives
// root-relative slash paths; returning true drops the event (and, for
// directories, skips the subtree).
func New(root string, window time.Duration, ignore func(rel string) bool, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, cmerrors.IOError(root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cmerrors.IOError(root, err)
	}
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:   abs,
		fs:     fsw,
		deb:    NewDebouncer(window),
		ignore: ignore,
		logger: logger,
		errs:   make(chan error, 16),
		stopCh: make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins translating events.
// It returns once the initial registration is complete; translation
// runs until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Events yields debounced batches. The channel closes on Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.deb.Output()
}

// Errors yields non-fatal watch errors; the watcher keeps running.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop ends watching and closes the event channel. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fs.Close()
		w.deb.Stop()
	})
}

// addTree registers root and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("watch registration skipped", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.ignore(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fs.Add(path); addErr != nil {
			w.logger.Warn("watch registration failed", "path", path, "error", addErr)
		}
		return nil
	})
	if err != nil {
		return cmerrors.IOError(dir, err)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.stopCh:
			return
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	if filepath.Base(ev.Name) == ".gitignore" {
		if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
			w.deb.Add(FileEvent{Path: rel, Op: OpGitignoreChange})
		}
		return
	}
	if w.ignore(rel) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("new directory not watched", "path", ev.Name, "error", err)
			}
			return
		}
		w.deb.Add(FileEvent{Path: rel, Op: OpCreate})
	case ev.Op&fsnotify.Write != 0:
		w.deb.Add(FileEvent{Path: rel, Op: OpModify})
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename emits Remove-like on the old path; the new path
		// arrives as its own Create.
		w.deb.Add(FileEvent{Path: rel, Op: OpDelete})
	}
}
