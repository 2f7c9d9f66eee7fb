package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codemaphq/codemap/internal/service"
)

// Server bridges AI clients with the code intelligence service over
// the Model Context Protocol.
type Server struct {
	mcp    *mcp.Server
	svc    *service.Service
	logger *slog.Logger
}

// NewServer builds the MCP server and registers every tool.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "codemap", Version: svc.Version()},
		nil,
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// RunStdio serves MCP over stdin/stdout until ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_repos",
		Description: "List registered repositories with index freshness. Use this first when unsure which repo name to pass to other tools.",
	}, s.handleListRepos)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Primary code search. Combines semantic similarity with full-text ranking over indexed chunks and explains why each result matched. Use this for most code questions instead of grep.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "doc_search",
		Description: "Search README, markdown, and other documentation. Finds design rationale and guides rather than implementations.",
	}, s.handleDocSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pattern_scan",
		Description: "Exact substring scan over indexed chunk contents. Use for literal identifiers, error strings, or config keys where semantic search adds noise.",
	}, s.handlePatternScan)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol_lookup",
		Description: "Find a symbol definition by fully-qualified or simple name, with file and line span.",
	}, s.handleSymbolLookup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol_context",
		Description: "Get a symbol with its callers, callees, and stored summary in one call. The fastest way to understand an unfamiliar function.",
	}, s.handleSymbolContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "callers",
		Description: "List symbols that reference the named symbol through the code graph (CALLS by default).",
	}, s.handleCallers)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "callees",
		Description: "List symbols the named symbol references through the code graph (CALLS by default).",
	}, s.handleCallees)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_files",
		Description: "List indexed files, optionally under a path prefix.",
	}, s.handleListFiles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_file",
		Description: "Read current file content from disk, constrained to the repository root.",
	}, s.handleReadFile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_tags",
		Description: "List the repository's tags. Tags can then filter hybrid_search via tags_all or tags_any.",
	}, s.handleListTags)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "tag_entity",
		Description: "Attach a tag to a file, chunk, or document. The tag is created on first use.",
	}, s.handleTagEntity)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repo_add",
		Description: "Register a repository for indexing. Provisions its schema and queues the first full index.",
	}, s.handleRepoAdd)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "enqueue_reindex_file",
		Description: "Queue a reindex of one changed file. Idempotent per path while a job is pending.",
	}, s.handleReindexFile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "enqueue_reindex_many",
		Description: "Queue a batched reindex of explicit upserts and deletes.",
	}, s.handleReindexMany)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "daemon_status",
		Description: "List worker processes and their heartbeat freshness.",
	}, s.handleDaemonStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check index coverage for a repository: table counts, embedding backlog, and queue depth. Use before searching a freshly added repo.",
	}, s.handleIndexStatus)

	s.logger.Info("mcp tools registered", "count", 17)
}
