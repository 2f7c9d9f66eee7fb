package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/ui"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemons, queue depth, and index coverage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(svc *service.Service) error {
				ctx := cmd.Context()
				overview, err := svc.Overview(ctx)
				if err != nil {
					return err
				}
				daemons, err := svc.DaemonStatus(ctx)
				if err != nil {
					return err
				}
				jobs, err := svc.JobStats(ctx, "")
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{
						"repos":   overview,
						"daemons": daemons,
						"jobs":    jobs,
					})
				}
				ui.NewRenderer(out).Status(overview, daemons, jobs)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}
