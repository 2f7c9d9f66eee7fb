package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codemaphq/codemap/internal/daemon"
	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/httpapi"
	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/metrics"
	"github.com/codemaphq/codemap/internal/preflight"
	"github.com/codemaphq/codemap/pkg/version"
)

// newServeCmd creates the serve command: job daemon plus HTTP API in
// one process.
func newServeCmd() *cobra.Command {
	var skipCheck bool
	var httpOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker daemon and HTTP API",
		Long: `Runs the job daemon (claim loops, watchers, health monitor) and the
admin HTTP API in one process. Stops cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogging(cfg, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			provider, err := embed.NewProvider(cfg.Embeddings, logger)
			if err != nil {
				logger.Warn("embedding provider unavailable", "error", err)
				provider = nil
			}
			completer := buildCompleter(cfg, logger)

			if !skipCheck {
				checker := preflight.New(st, cfg,
					preflight.WithProvider(provider),
					preflight.WithCompleter(completer),
					preflight.WithOutput(cmd.ErrOrStderr()))
				results := checker.RunAll(ctx)
				if checker.HasCriticalFailures(results) {
					checker.PrintResults(results)
					return cmerrors.InvalidInput("preflight failed; fix the errors above or pass --skip-check")
				}
			}

			m := metrics.New()
			svc := buildService(st, cfg, logger, m)
			httpSrv := httpapi.New(svc, cfg.HTTP, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpSrv.ListenAndServe(gctx)
			})

			if !httpOnly {
				idx, err := indexer.New(st, logger, indexer.Options{Ignore: cfg.Watcher.Ignore})
				if err != nil {
					return err
				}
				embedder := embed.NewService(st, provider, cfg.Embeddings, logger)
				d, err := daemon.New(daemon.Options{
					Store:     st,
					Config:    cfg,
					Logger:    logger,
					Metrics:   m,
					Indexer:   idx,
					Embedder:  embedder,
					Completer: completer,
					Version:   version.Version,
				})
				if err != nil {
					return err
				}
				g.Go(func() error {
					return d.Run(gctx)
				})
			}

			logger.Info("codemap serving", "http", cfg.HTTP.Addr, "http_only", httpOnly)
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "skip preflight checks")
	cmd.Flags().BoolVar(&httpOnly, "http-only", false, "serve the HTTP API without the job daemon")
	return cmd
}
