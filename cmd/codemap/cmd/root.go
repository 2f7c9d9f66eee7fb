// Package cmd provides the CLI commands for codemap.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/llm"
	"github.com/codemaphq/codemap/internal/logging"
	"github.com/codemaphq/codemap/internal/metrics"
	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/store"
	"github.com/codemaphq/codemap/pkg/version"
)

// Exit codes: 0 success, 1 runtime failure, 2 usage error.
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codemap",
		Short: "Local-first code intelligence service",
		Long: `codemap indexes repositories into PostgreSQL and serves hybrid
retrieval (semantic + full-text) to humans over HTTP and to AI agents
over MCP.

Start with 'codemap migrate', register a repository with 'codemap repo
add', then run 'codemap serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("codemap version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ~/.config/codemap/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newRepoCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI and maps errors onto exit codes.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := cmerrors.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		if cmerrors.Is(err, cmerrors.KindInvalidInput) {
			return exitUsage
		}
		return exitRuntime
	}
	return exitOK
}

// loadConfig reads the config file and applies the CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setupLogging configures slog per the config. The cleanup closes the
// log file.
func setupLogging(cfg *config.Config, toStderr bool) (*slog.Logger, func(), error) {
	logCfg := logging.Config{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		FilePath:      cfg.Log.File,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxFiles:      cfg.Log.MaxFiles,
		WriteToStderr: toStderr,
	}
	return logging.Setup(logCfg)
}

// openStore connects to PostgreSQL.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	st, err := store.New(ctx, cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return st, nil
}

// buildService wires the full service stack: store, embedding provider,
// and search engine. The provider may fail to construct; retrieval then
// degrades to text-only and the error is logged, not fatal.
func buildService(st *store.Store, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *service.Service {
	var provider embed.Provider
	if p, err := embed.NewProvider(cfg.Embeddings, logger); err != nil {
		logger.Warn("embedding provider unavailable, search degrades to text-only", "error", err)
	} else {
		provider = p
	}
	engine := search.New(st, provider, cfg.Search, logger)
	return service.New(st, engine, cfg, m, logger, version.Version)
}

// buildCompleter constructs the LLM backend, or nil when unconfigured.
func buildCompleter(cfg *config.Config, logger *slog.Logger) llm.Completer {
	if cfg.LLM.Provider == "" {
		return nil
	}
	completer, err := llm.New(cfg.LLM, logger)
	if err != nil {
		logger.Warn("llm provider unavailable, summaries disabled", "error", err)
		return nil
	}
	return completer
}
