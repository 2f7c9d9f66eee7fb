package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codemaphq/codemap/internal/mcp"
	"github.com/codemaphq/codemap/internal/metrics"
)

// newMCPCmd creates the mcp command. Stdout belongs to the protocol,
// so logging goes to the file only.
func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Serves the Model Context Protocol over stdin/stdout for AI coding
agents. Register it with your agent, e.g.:

  claude mcp add codemap -- codemap mcp`,
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
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := buildService(st, cfg, logger, metrics.New())
			return mcp.NewServer(svc, logger).RunStdio(ctx)
		},
	}
}
