package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/ui"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		repo        string
		topK        int
		pathGlob    string
		languages   []string
		tagsAll     []string
		tagsAny     []string
		requireText bool
		docs        bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over an indexed repository",
		Long: `Runs hybrid retrieval (semantic + full-text) and prints ranked
results with the per-leg explanation. With --docs the search runs over
documentation instead of code chunks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			req := search.Request{
				Query: query,
				TopK:  topK,
				Filters: search.Filters{
					PathGlob:  pathGlob,
					Languages: languages,
					TagsAll:   tagsAll,
					TagsAny:   tagsAny,
				},
				RequireTextMatch: requireText,
			}
			return withService(cmd, func(svc *service.Service) error {
				out := cmd.OutOrStdout()
				if docs {
					resp, r, err := svc.DocSearch(cmd.Context(), repo, req)
					if err != nil {
						return err
					}
					if jsonOut {
						enc := json.NewEncoder(out)
						enc.SetIndent("", "  ")
						return enc.Encode(resp)
					}
					// render doc hits through the shared result shape
					converted := &search.Response{Degraded: resp.Degraded, TookMS: resp.TookMS}
					for _, d := range resp.Results {
						converted.Results = append(converted.Results, search.Result{
							Path:        d.Path,
							Snippet:     d.Snippet,
							FinalScore:  d.FinalScore,
							VecRank:     d.VecRank,
							FTSRank:     d.FTSRank,
							MatchedTags: d.MatchedTags,
						})
					}
					ui.NewRenderer(out).SearchResults(r.Name, converted)
					return nil
				}

				resp, r, err := svc.HybridSearch(cmd.Context(), repo, req)
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}
				ui.NewRenderer(out).SearchResults(r.Name, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "repository (default: configured default_repo)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "result count (default from config)")
	cmd.Flags().StringVar(&pathGlob, "path", "", "path glob filter, e.g. 'src/**/*.py'")
	cmd.Flags().StringSliceVar(&languages, "lang", nil, "language filter")
	cmd.Flags().StringSliceVar(&tagsAll, "tags-all", nil, "require every listed tag")
	cmd.Flags().StringSliceVar(&tagsAny, "tags-any", nil, "require at least one listed tag")
	cmd.Flags().BoolVar(&requireText, "require-text", false, "drop results without a full-text match")
	cmd.Flags().BoolVar(&docs, "docs", false, "search documentation instead of code")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}
