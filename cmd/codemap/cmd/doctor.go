package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/embed"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/preflight"
)

// newDoctorCmd creates the doctor command.
func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the environment",
		Long:  `Checks database connectivity, the pgvector extension, migrations, provider endpoints, and process limits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogging(cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			opts := []preflight.Option{
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithCompleter(buildCompleter(cfg, logger)),
			}
			if provider, err := embed.NewProvider(cfg.Embeddings, logger); err == nil {
				opts = append(opts, preflight.WithProvider(provider))
			}

			// A broken DSN should show as a failed check, not abort
			// the report.
			st, err := openStore(ctx, cfg, logger)
			if err == nil {
				defer st.Close()
			} else {
				st = nil
			}

			checker := preflight.New(st, cfg, opts...)
			results := checker.RunAll(ctx)
			checker.PrintResults(results)
			if checker.HasCriticalFailures(results) {
				return cmerrors.InvalidInput("environment checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show check details")
	return cmd
}
