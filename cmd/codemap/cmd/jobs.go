package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/store"
	"github.com/codemaphq/codemap/internal/ui"
)

// newJobsCmd creates the jobs command group.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control the job queue",
	}
	cmd.AddCommand(newJobsTriggerCmd())
	cmd.AddCommand(newJobsCancelCmd())
	cmd.AddCommand(newJobsStatusCmd())
	return cmd
}

func newJobsTriggerCmd() *cobra.Command {
	var repo string
	var force bool

	cmd := &cobra.Command{
		Use:   "trigger <type>",
		Short: "Enqueue a job",
		Long: `Enqueues a job by type, e.g. FULL_INDEX, EMBED_MISSING, DOCS_SCAN.
Triggers dedup against live jobs of the same type unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *service.Service) error {
				job, created, err := svc.TriggerJob(cmd.Context(), service.TriggerJobParams{
					Repo:  repo,
					Type:  args[0],
					Force: force,
				})
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "queued %s %s\n", job.Type, job.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "already queued as %s (%s)\n", job.ID, job.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "repository (default: configured default_repo)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass dedup against live jobs")
	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Long:  `Cancels a PENDING job at once; a CLAIMED job stops at the worker's next cancellation probe.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *service.Service) error {
				status, err := svc.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s\n", args[0], status)
				return nil
			})
		},
	}
}

func newJobsStatusCmd() *cobra.Command {
	var repo string
	var statuses string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List queue entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(svc *service.Service) error {
				params := service.ListJobsParams{Repo: repo, Limit: limit}
				if statuses != "" {
					params.Statuses = strings.Split(statuses, ",")
				}
				jobs, err := svc.ListJobs(cmd.Context(), params)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				ui.NewRenderer(out).Jobs(jobs)

				counts, err := svc.JobStats(cmd.Context(), repo)
				if err != nil {
					return err
				}
				if n := counts[store.JobPending] + counts[store.JobClaimed]; n > 0 {
					fmt.Fprintf(out, "%d live job(s)\n", n)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "filter by repository")
	cmd.Flags().StringVar(&statuses, "status", "", "filter by status, comma-separated (PENDING,CLAIMED,...)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}
