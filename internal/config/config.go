// Package config loads the daemon configuration.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.config/codemap/config.yaml), an explicit --config file, CODEMAP_*
// environment variables. The merged result is validated before use.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	DB         DBConfig         `yaml:"db" json:"db"`
	Daemon     DaemonConfig     `yaml:"daemon" json:"daemon"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Log        LogConfig        `yaml:"log" json:"log"`

	// DefaultRepo is used by retrieval surfaces when no repo is given.
	DefaultRepo string `yaml:"default_repo" json:"default_repo"`
}

// DBConfig configures the PostgreSQL connection and namespace layout.
type DBConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" json:"dsn"`
	// ControlSchema holds the registry, job queue, and daemon heartbeats.
	ControlSchema string `yaml:"control_schema" json:"control_schema"`
	// SchemaPrefix prefixes each per-repository schema name.
	SchemaPrefix string `yaml:"schema_prefix" json:"schema_prefix"`
	// MaxConns caps the pgx pool size.
	MaxConns int32 `yaml:"max_conns" json:"max_conns"`
	// MinConns keeps warm connections in the pool.
	MinConns int32 `yaml:"min_conns" json:"min_conns"`
}

// DaemonConfig configures the worker supervisor.
type DaemonConfig struct {
	// WorkerMode is one of "single", "per_repo", "pool".
	WorkerMode string `yaml:"worker_mode" json:"worker_mode"`
	// MaxWorkers bounds concurrent job execution.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
	// MaxConcurrentPerRepo bounds CLAIMED jobs per repository.
	MaxConcurrentPerRepo int `yaml:"max_concurrent_per_repo" json:"max_concurrent_per_repo"`
	// PerTypeLimits bounds CLAIMED jobs per job type, e.g. {FULL_INDEX: 2}.
	PerTypeLimits map[string]int `yaml:"per_type_limits" json:"per_type_limits"`
	// PollInterval is the claim loop idle poll, e.g. "500ms".
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	// HeartbeatInterval is the health monitor cadence, e.g. "30s".
	HeartbeatInterval string `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	// DeadThreshold marks other daemons stale, e.g. "120s".
	DeadThreshold string `yaml:"dead_threshold" json:"dead_threshold"`
	// StaleJobThreshold releases CLAIMED jobs older than this, e.g. "30m".
	StaleJobThreshold string `yaml:"stale_job_threshold" json:"stale_job_threshold"`
	// JobTimeoutSec is the per-job wall-clock budget.
	JobTimeoutSec int `yaml:"job_timeout_sec" json:"job_timeout_sec"`
	// MaxAttempts is the default retry budget per job.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// RetryBackoffSec is the base for the requeue backoff (base * 2^attempts).
	RetryBackoffSec int `yaml:"retry_backoff_sec" json:"retry_backoff_sec"`
	// PIDFile overrides the default pidfile location.
	PIDFile string `yaml:"pid_file" json:"pid_file"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "ollama", "openai", "vllm".
	Provider string `yaml:"provider" json:"provider"`
	// BaseURL is the provider endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey authorizes OpenAI-compatible endpoints. Optional.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the default embedding model.
	Model string `yaml:"model" json:"model"`
	// Dimension is the vector width; repo config may override per schema.
	Dimension int `yaml:"dimension" json:"dimension"`
	// BatchSize is texts per provider request (clamped to 32..100).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// MaxRetries bounds per-batch retry on 429/5xx.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RebuildThreshold is the insert fraction that triggers an index rebuild.
	RebuildThreshold float64 `yaml:"rebuild_threshold" json:"rebuild_threshold"`
	// RequestTimeout is the per-request budget, e.g. "60s".
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// LLMConfig configures the completion provider used for summaries.
type LLMConfig struct {
	// Provider is one of "ollama", "openai", "vllm".
	Provider string `yaml:"provider" json:"provider"`
	// BaseURL is the provider endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey authorizes OpenAI-compatible endpoints. Optional.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the default completion model.
	Model string `yaml:"model" json:"model"`
	// RequestTimeout is the per-request budget, e.g. "120s".
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// KVector is the vector candidate width.
	KVector int `yaml:"k_vector" json:"k_vector"`
	// KFTS is the full-text candidate width.
	KFTS int `yaml:"k_fts" json:"k_fts"`
	// VectorWeight, FTSWeight, TagWeight combine into the final score and
	// must sum to 1.0.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	FTSWeight    float64 `yaml:"fts_weight" json:"fts_weight"`
	TagWeight    float64 `yaml:"tag_weight" json:"tag_weight"`
	// DefaultTopK is the result count when the request omits top_k.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	// FuzzyThreshold is the minimum similarity for repo-name suggestions.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	// MaxSuggestions caps fuzzy suggestions.
	MaxSuggestions int `yaml:"max_suggestions" json:"max_suggestions"`
}

// WatcherConfig configures per-repo filesystem watching.
type WatcherConfig struct {
	// Debounce is the event coalescing window, e.g. "2s".
	Debounce string `yaml:"debounce" json:"debounce"`
	// Ignore extends the gitignore set with fixed directory names.
	Ignore []string `yaml:"ignore" json:"ignore"`
}

// HTTPConfig configures the admin API server.
type HTTPConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8713".
	Addr string `yaml:"addr" json:"addr"`
	// CORSOrigins whitelists browser origins. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	// EnablePprof mounts /debug/pprof.
	EnablePprof bool `yaml:"enable_pprof" json:"enable_pprof"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// defaultWatcherIgnore are skipped by the watcher and the scanner in
// addition to gitignore rules.
var defaultWatcherIgnore = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	".idea",
	".vscode",
	"dist",
	"build",
	"target",
	"vendor",
}

// NewConfig creates a Config with built-in defaults.
func NewConfig() *Config {
	return &Config{
		DB: DBConfig{
			DSN:           "postgres://localhost:5432/codemap?sslmode=disable",
			ControlSchema: "codemap_control",
			SchemaPrefix:  "repo_",
			MaxConns:      int32(runtime.NumCPU() * 2),
			MinConns:      2,
		},
		Daemon: DaemonConfig{
			WorkerMode:           "pool",
			MaxWorkers:           4,
			MaxConcurrentPerRepo: 2,
			PerTypeLimits: map[string]int{
				"FULL_INDEX":    2,
				"EMBED_MISSING": 3,
			},
			PollInterval:      "500ms",
			HeartbeatInterval: "30s",
			DeadThreshold:     "120s",
			StaleJobThreshold: "30m",
			JobTimeoutSec:     3600,
			MaxAttempts:       3,
			RetryBackoffSec:   30,
		},
		Embeddings: EmbeddingsConfig{
			Provider:         "ollama",
			BaseURL:          "http://localhost:11434",
			Model:            "nomic-embed-text",
			Dimension:        768,
			BatchSize:        64,
			MaxRetries:       3,
			RebuildThreshold: 0.2,
			RequestTimeout:   "60s",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "qwen2.5-coder:7b",
			RequestTimeout: "120s",
		},
		Search: SearchConfig{
			KVector:        30,
			KFTS:           30,
			VectorWeight:   0.55,
			FTSWeight:      0.35,
			TagWeight:      0.10,
			DefaultTopK:    12,
			FuzzyThreshold: 0.6,
			MaxSuggestions: 3,
		},
		Watcher: WatcherConfig{
			Debounce: "2s",
			Ignore:   defaultWatcherIgnore,
		},
		HTTP: HTTPConfig{
			Addr:        "127.0.0.1:8713",
			CORSOrigins: nil,
			EnablePprof: false,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "auto",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration path, following
// XDG_CONFIG_HOME when set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codemap", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codemap", "config.yaml")
	}
	return filepath.Join(home, ".config", "codemap", "config.yaml")
}

// Load builds the effective configuration. explicitPath may be empty; when
// set, the file must exist.
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, fmt.Errorf("config file not found: %s", explicitPath)
		}
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.DB.DSN != "" {
		c.DB.DSN = other.DB.DSN
	}
	if other.DB.ControlSchema != "" {
		c.DB.ControlSchema = other.DB.ControlSchema
	}
	if other.DB.SchemaPrefix != "" {
		c.DB.SchemaPrefix = other.DB.SchemaPrefix
	}
	if other.DB.MaxConns != 0 {
		c.DB.MaxConns = other.DB.MaxConns
	}
	if other.DB.MinConns != 0 {
		c.DB.MinConns = other.DB.MinConns
	}

	if other.Daemon.WorkerMode != "" {
		c.Daemon.WorkerMode = other.Daemon.WorkerMode
	}
	if other.Daemon.MaxWorkers != 0 {
		c.Daemon.MaxWorkers = other.Daemon.MaxWorkers
	}
	if other.Daemon.MaxConcurrentPerRepo != 0 {
		c.Daemon.MaxConcurrentPerRepo = other.Daemon.MaxConcurrentPerRepo
	}
	if len(other.Daemon.PerTypeLimits) > 0 {
		c.Daemon.PerTypeLimits = other.Daemon.PerTypeLimits
	}
	if other.Daemon.PollInterval != "" {
		c.Daemon.PollInterval = other.Daemon.PollInterval
	}
	if other.Daemon.HeartbeatInterval != "" {
		c.Daemon.HeartbeatInterval = other.Daemon.HeartbeatInterval
	}
	if other.Daemon.DeadThreshold != "" {
		c.Daemon.DeadThreshold = other.Daemon.DeadThreshold
	}
	if other.Daemon.StaleJobThreshold != "" {
		c.Daemon.StaleJobThreshold = other.Daemon.StaleJobThreshold
	}
	if other.Daemon.JobTimeoutSec != 0 {
		c.Daemon.JobTimeoutSec = other.Daemon.JobTimeoutSec
	}
	if other.Daemon.MaxAttempts != 0 {
		c.Daemon.MaxAttempts = other.Daemon.MaxAttempts
	}
	if other.Daemon.RetryBackoffSec != 0 {
		c.Daemon.RetryBackoffSec = other.Daemon.RetryBackoffSec
	}
	if other.Daemon.PIDFile != "" {
		c.Daemon.PIDFile = other.Daemon.PIDFile
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimension != 0 {
		c.Embeddings.Dimension = other.Embeddings.Dimension
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.RebuildThreshold != 0 {
		c.Embeddings.RebuildThreshold = other.Embeddings.RebuildThreshold
	}
	if other.Embeddings.RequestTimeout != "" {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.RequestTimeout != "" {
		c.LLM.RequestTimeout = other.LLM.RequestTimeout
	}

	if other.Search.KVector != 0 {
		c.Search.KVector = other.Search.KVector
	}
	if other.Search.KFTS != 0 {
		c.Search.KFTS = other.Search.KFTS
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.FTSWeight != 0 {
		c.Search.FTSWeight = other.Search.FTSWeight
	}
	if other.Search.TagWeight != 0 {
		c.Search.TagWeight = other.Search.TagWeight
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.FuzzyThreshold != 0 {
		c.Search.FuzzyThreshold = other.Search.FuzzyThreshold
	}
	if other.Search.MaxSuggestions != 0 {
		c.Search.MaxSuggestions = other.Search.MaxSuggestions
	}

	if other.Watcher.Debounce != "" {
		c.Watcher.Debounce = other.Watcher.Debounce
	}
	if len(other.Watcher.Ignore) > 0 {
		// Extend the defaults rather than replace
		c.Watcher.Ignore = append(c.Watcher.Ignore, other.Watcher.Ignore...)
	}

	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if len(other.HTTP.CORSOrigins) > 0 {
		c.HTTP.CORSOrigins = other.HTTP.CORSOrigins
	}
	if other.HTTP.EnablePprof {
		c.HTTP.EnablePprof = true
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}

	if other.DefaultRepo != "" {
		c.DefaultRepo = other.DefaultRepo
	}
}

// applyEnvOverrides applies CODEMAP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEMAP_DB_DSN"); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv("CODEMAP_CONTROL_SCHEMA"); v != "" {
		c.DB.ControlSchema = v
	}
	if v := os.Getenv("CODEMAP_SCHEMA_PREFIX"); v != "" {
		c.DB.SchemaPrefix = v
	}

	if v := os.Getenv("CODEMAP_WORKER_MODE"); v != "" {
		c.Daemon.WorkerMode = v
	}
	if v := os.Getenv("CODEMAP_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Daemon.MaxWorkers = n
		}
	}
	if v := os.Getenv("CODEMAP_JOB_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Daemon.JobTimeoutSec = n
		}
	}

	if v := os.Getenv("CODEMAP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODEMAP_EMBEDDINGS_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("CODEMAP_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("CODEMAP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEMAP_EMBEDDINGS_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimension = n
		}
	}

	if v := os.Getenv("CODEMAP_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CODEMAP_LLM_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("CODEMAP_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv("CODEMAP_K_VECTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.KVector = n
		}
	}
	if v := os.Getenv("CODEMAP_K_FTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.KFTS = n
		}
	}

	if v := os.Getenv("CODEMAP_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("CODEMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CODEMAP_DEFAULT_REPO"); v != "" {
		c.DefaultRepo = v
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.DB.ControlSchema == "" {
		return fmt.Errorf("db.control_schema is required")
	}

	validModes := map[string]bool{"single": true, "per_repo": true, "pool": true}
	if !validModes[strings.ToLower(c.Daemon.WorkerMode)] {
		return fmt.Errorf("daemon.worker_mode must be 'single', 'per_repo', or 'pool', got %s", c.Daemon.WorkerMode)
	}
	if c.Daemon.MaxWorkers < 1 {
		return fmt.Errorf("daemon.max_workers must be at least 1, got %d", c.Daemon.MaxWorkers)
	}
	if c.Daemon.MaxConcurrentPerRepo < 1 {
		return fmt.Errorf("daemon.max_concurrent_per_repo must be at least 1, got %d", c.Daemon.MaxConcurrentPerRepo)
	}
	for _, name := range []string{"poll_interval", "heartbeat_interval", "dead_threshold", "stale_job_threshold"} {
		if _, err := time.ParseDuration(c.Daemon.durationField(name)); err != nil {
			return fmt.Errorf("daemon.%s is not a valid duration: %w", name, err)
		}
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "vllm": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai', or 'vllm', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 1 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.RebuildThreshold <= 0 || c.Embeddings.RebuildThreshold > 1 {
		return fmt.Errorf("embeddings.rebuild_threshold must be in (0, 1], got %f", c.Embeddings.RebuildThreshold)
	}
	if !validProviders[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("llm.provider must be 'ollama', 'openai', or 'vllm', got %s", c.LLM.Provider)
	}

	sum := c.Search.VectorWeight + c.Search.FTSWeight + c.Search.TagWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search weights must sum to 1.0, got %.2f", sum)
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("search.fuzzy_threshold must be between 0 and 1, got %f", c.Search.FuzzyThreshold)
	}

	if _, err := time.ParseDuration(c.Watcher.Debounce); err != nil {
		return fmt.Errorf("watcher.debounce is not a valid duration: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// durationField maps a validation name to its raw value.
func (d DaemonConfig) durationField(name string) string {
	switch name {
	case "poll_interval":
		return d.PollInterval
	case "heartbeat_interval":
		return d.HeartbeatInterval
	case "dead_threshold":
		return d.DeadThreshold
	default:
		return d.StaleJobThreshold
	}
}

// PollEvery returns the parsed claim-loop poll interval.
func (d DaemonConfig) PollEvery() time.Duration {
	return parseDurationOr(d.PollInterval, 500*time.Millisecond)
}

// HeartbeatEvery returns the parsed health monitor cadence.
func (d DaemonConfig) HeartbeatEvery() time.Duration {
	return parseDurationOr(d.HeartbeatInterval, 30*time.Second)
}

// DeadAfter returns the parsed daemon staleness threshold.
func (d DaemonConfig) DeadAfter() time.Duration {
	return parseDurationOr(d.DeadThreshold, 120*time.Second)
}

// StaleJobAfter returns the parsed stuck-claim threshold.
func (d DaemonConfig) StaleJobAfter() time.Duration {
	return parseDurationOr(d.StaleJobThreshold, 30*time.Minute)
}

// JobTimeout returns the per-job wall-clock budget.
func (d DaemonConfig) JobTimeout() time.Duration {
	if d.JobTimeoutSec <= 0 {
		return time.Hour
	}
	return time.Duration(d.JobTimeoutSec) * time.Second
}

// RetryBackoffBase returns the requeue backoff base.
func (d DaemonConfig) RetryBackoffBase() time.Duration {
	if d.RetryBackoffSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.RetryBackoffSec) * time.Second
}

// PIDFilePath returns the configured pidfile or the default under the
// user's codemap directory.
func (d DaemonConfig) PIDFilePath() string {
	if d.PIDFile != "" {
		return d.PIDFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".codemap", "daemon.pid")
}

// DebounceWindow returns the parsed watcher debounce.
func (w WatcherConfig) DebounceWindow() time.Duration {
	return parseDurationOr(w.Debounce, 2*time.Second)
}

// Timeout returns the parsed embedding request budget.
func (e EmbeddingsConfig) Timeout() time.Duration {
	return parseDurationOr(e.RequestTimeout, 60*time.Second)
}

// EffectiveBatchSize clamps the configured batch size to the provider
// window of 32..100 texts per request.
func (e EmbeddingsConfig) EffectiveBatchSize() int {
	switch {
	case e.BatchSize < 32:
		return 32
	case e.BatchSize > 100:
		return 100
	default:
		return e.BatchSize
	}
}

// Timeout returns the parsed completion request budget.
func (l LLMConfig) Timeout() time.Duration {
	return parseDurationOr(l.RequestTimeout, 120*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
