package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "codemap_control", cfg.DB.ControlSchema)
	assert.Equal(t, "repo_", cfg.DB.SchemaPrefix)
	assert.Equal(t, "pool", cfg.Daemon.WorkerMode)
	assert.Equal(t, 2, cfg.Daemon.MaxConcurrentPerRepo)
	assert.Equal(t, 3600, cfg.Daemon.JobTimeoutSec)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, 0.2, cfg.Embeddings.RebuildThreshold)
	assert.Equal(t, 30, cfg.Search.KVector)
	assert.Equal(t, 30, cfg.Search.KFTS)
	assert.InDelta(t, 0.55, cfg.Search.VectorWeight, 1e-9)
	assert.InDelta(t, 0.35, cfg.Search.FTSWeight, 1e-9)
	assert.InDelta(t, 0.10, cfg.Search.TagWeight, 1e-9)
	assert.Equal(t, 0.6, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 3, cfg.Search.MaxSuggestions)
	assert.Equal(t, "2s", cfg.Watcher.Debounce)

	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLMergesNonZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codemap.yaml")
	yaml := `
db:
  dsn: postgres://db.internal:5432/intel
daemon:
  worker_mode: per_repo
  max_workers: 8
embeddings:
  model: mxbai-embed-large
  dimension: 1024
search:
  default_top_k: 20
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.loadYAML(path))

	// Overridden values
	assert.Equal(t, "postgres://db.internal:5432/intel", cfg.DB.DSN)
	assert.Equal(t, "per_repo", cfg.Daemon.WorkerMode)
	assert.Equal(t, 8, cfg.Daemon.MaxWorkers)
	assert.Equal(t, "mxbai-embed-large", cfg.Embeddings.Model)
	assert.Equal(t, 1024, cfg.Embeddings.Dimension)
	assert.Equal(t, 20, cfg.Search.DefaultTopK)

	// Untouched defaults survive the merge
	assert.Equal(t, "codemap_control", cfg.DB.ControlSchema)
	assert.Equal(t, 2, cfg.Daemon.MaxConcurrentPerRepo)
	assert.InDelta(t, 0.55, cfg.Search.VectorWeight, 1e-9)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODEMAP_DB_DSN", "postgres://env-host:5432/envdb")
	t.Setenv("CODEMAP_WORKER_MODE", "single")
	t.Setenv("CODEMAP_EMBEDDINGS_DIMENSION", "1536")
	t.Setenv("CODEMAP_K_VECTOR", "50")
	t.Setenv("CODEMAP_LOG_LEVEL", "debug")

	cfg := NewConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "postgres://env-host:5432/envdb", cfg.DB.DSN)
	assert.Equal(t, "single", cfg.Daemon.WorkerMode)
	assert.Equal(t, 1536, cfg.Embeddings.Dimension)
	assert.Equal(t, 50, cfg.Search.KVector)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesIgnoreInvalidNumbers(t *testing.T) {
	t.Setenv("CODEMAP_MAX_WORKERS", "not-a-number")
	t.Setenv("CODEMAP_EMBEDDINGS_DIMENSION", "-5")

	cfg := NewConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 4, cfg.Daemon.MaxWorkers)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty dsn",
			mutate:  func(c *Config) { c.DB.DSN = "" },
			wantErr: "db.dsn",
		},
		{
			name:    "unknown worker mode",
			mutate:  func(c *Config) { c.Daemon.WorkerMode = "turbo" },
			wantErr: "worker_mode",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Daemon.MaxWorkers = 0 },
			wantErr: "max_workers",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.Daemon.PollInterval = "sometimes" },
			wantErr: "poll_interval",
		},
		{
			name:    "unknown embedding provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "acme" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.Embeddings.Dimension = 0 },
			wantErr: "dimension",
		},
		{
			name:    "rebuild threshold out of range",
			mutate:  func(c *Config) { c.Embeddings.RebuildThreshold = 1.5 },
			wantErr: "rebuild_threshold",
		},
		{
			name: "weights do not sum to one",
			mutate: func(c *Config) {
				c.Search.VectorWeight = 0.8
				c.Search.FTSWeight = 0.35
				c.Search.TagWeight = 0.10
			},
			wantErr: "sum to 1.0",
		},
		{
			name:    "fuzzy threshold above one",
			mutate:  func(c *Config) { c.Search.FuzzyThreshold = 1.2 },
			wantErr: "fuzzy_threshold",
		},
		{
			name:    "bad debounce",
			mutate:  func(c *Config) { c.Watcher.Debounce = "soonish" },
			wantErr: "debounce",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsWeightDrift(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = 0.551
	cfg.Search.FTSWeight = 0.349
	cfg.Search.TagWeight = 0.10

	require.NoError(t, cfg.Validate())
}

func TestDurationAccessors(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.PollEvery())
	assert.Equal(t, 30*time.Second, cfg.Daemon.HeartbeatEvery())
	assert.Equal(t, 120*time.Second, cfg.Daemon.DeadAfter())
	assert.Equal(t, 30*time.Minute, cfg.Daemon.StaleJobAfter())
	assert.Equal(t, time.Hour, cfg.Daemon.JobTimeout())
	assert.Equal(t, 30*time.Second, cfg.Daemon.RetryBackoffBase())
	assert.Equal(t, 2*time.Second, cfg.Watcher.DebounceWindow())

	// Garbage values fall back rather than panic
	cfg.Daemon.PollInterval = "whenever"
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.PollEvery())
}

func TestEffectiveBatchSizeClamps(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{configured: 1, want: 32},
		{configured: 32, want: 32},
		{configured: 64, want: 64},
		{configured: 100, want: 100},
		{configured: 512, want: 100},
	}

	for _, tt := range tests {
		e := EmbeddingsConfig{BatchSize: tt.configured}
		assert.Equal(t, tt.want, e.EffectiveBatchSize(), "batch_size=%d", tt.configured)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := NewConfig()
	cfg.DefaultRepo = "pg-go-app"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "pg-go-app", loaded.DefaultRepo)
	assert.Equal(t, cfg.DB.ControlSchema, loaded.DB.ControlSchema)
}

func TestWatcherIgnoreExtendsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codemap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watcher:\n  ignore: [\"generated\"]\n"), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.loadYAML(path))

	assert.Contains(t, cfg.Watcher.Ignore, ".git")
	assert.Contains(t, cfg.Watcher.Ignore, "node_modules")
	assert.Contains(t, cfg.Watcher.Ignore, "generated")
}
