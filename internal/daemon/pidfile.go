package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// ErrPIDFileNotFound is returned when the PID file does not exist.
var ErrPIDFileNotFound = errors.New("pid file not found")

// PIDFile enforces single-instance operation: an advisory flock on the
// pidfile, held for the process lifetime, plus the pid written inside
// for operators and `codemap status`.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile prepares a pidfile at path without touching the
// filesystem.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the pidfile location.
func (p *PIDFile) Path() string { return p.path }

// Acquire takes the instance lock and records the current pid. A held
// lock means another daemon is already running.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return cmerrors.IOError(p.path, err)
	}
	locked, err := p.lock.TryLock()
	if err != nil {
		return cmerrors.IOError(p.lock.Path(), err)
	}
	if !locked {
		msg := "another daemon instance is running"
		if pid, readErr := p.Read(); readErr == nil {
			msg = fmt.Sprintf("another daemon instance is running (pid %d)", pid)
		}
		return cmerrors.InvalidInput(msg)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = p.lock.Unlock()
		return cmerrors.IOError(p.path, err)
	}
	return nil
}

// Release drops the lock and removes the pidfile. Safe after a failed
// Acquire.
func (p *PIDFile) Release() error {
	if err := p.lock.Unlock(); err != nil {
		return cmerrors.IOError(p.lock.Path(), err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return cmerrors.IOError(p.path, err)
	}
	return nil
}

// Read returns the pid recorded in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, cmerrors.IOError(p.path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, cmerrors.InvalidInput("pid file corrupt: " + p.path)
	}
	return pid, nil
}

// Running reports whether the recorded pid is alive. Absence of the
// file means not running.
func (p *PIDFile) Running() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
