package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileAcquireReadRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "daemon.pid")
	p := NewPIDFile(path)
	require.NoError(t, p.Acquire())

	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, p.Running())

	require.NoError(t, p.Release())
	_, err = p.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
}

func TestPIDFileReadMissing(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "daemon.pid"))
	_, err := p.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, p.Running())
}

func TestPIDFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))
	_, err := NewPIDFile(path).Read()
	require.Error(t, err)
}

func TestPIDFileReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p := NewPIDFile(path)
	require.NoError(t, p.Acquire())
	require.NoError(t, p.Release())
	require.NoError(t, p.Acquire())
	require.NoError(t, p.Release())
}
