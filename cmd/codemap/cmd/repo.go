package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/metrics"
	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/ui"
)

// newRepoCmd creates the repo command group.
func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
	}
	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoRemoveCmd())
	return cmd
}

// withService loads config, opens the store, and runs fn with a wired
// service.
func withService(cmd *cobra.Command, fn func(svc *service.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(buildService(st, cfg, logger, metrics.New()))
}

func newRepoAddCmd() *cobra.Command {
	var (
		noIndex       bool
		noEmbed       bool
		autoWatch     bool
		autoSummaries bool
		model         string
		dimension     int
	)

	cmd := &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a repository and queue its first index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[1])
			if err != nil {
				return cmerrors.InvalidInput(fmt.Sprintf("invalid path %q", args[1]))
			}
			return withService(cmd, func(svc *service.Service) error {
				params := service.AddRepoParams{
					Name:               args[0],
					RootPath:           root,
					EmbeddingModel:     model,
					EmbeddingDimension: dimension,
				}
				if noIndex {
					f := false
					params.AutoIndex = &f
				}
				if noEmbed {
					f := false
					params.AutoEmbed = &f
				}
				if autoWatch {
					t := true
					params.AutoWatch = &t
				}
				if autoSummaries {
					t := true
					params.AutoSummaries = &t
				}
				repo, err := svc.AddRepo(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s (schema %s)\n", repo.Name, repo.SchemaName)
				if repo.AutoIndex {
					fmt.Fprintln(cmd.OutOrStdout(), "full index queued")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noIndex, "no-index", false, "do not queue the first full index")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "do not embed after indexing")
	cmd.Flags().BoolVar(&autoWatch, "watch", false, "watch the filesystem for changes")
	cmd.Flags().BoolVar(&autoSummaries, "summaries", false, "generate LLM summaries after indexing")
	cmd.Flags().StringVar(&model, "model", "", "embedding model override")
	cmd.Flags().IntVar(&dimension, "dimension", 0, "embedding dimension override")
	return cmd
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(svc *service.Service) error {
				repos, err := svc.ListRepos(cmd.Context())
				if err != nil {
					return err
				}
				ui.NewRenderer(cmd.OutOrStdout()).Repos(repos)
				return nil
			})
		},
	}
}

func newRepoRemoveCmd() *cobra.Command {
	var dropSchema bool

	cmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Unregister a repository",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *service.Service) error {
				if err := svc.RemoveRepo(cmd.Context(), args[0], dropSchema); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				if dropSchema {
					fmt.Fprintln(cmd.OutOrStdout(), "schema and indexed data dropped")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dropSchema, "drop-schema", false, "also drop the repo schema and all indexed data")
	return cmd
}
