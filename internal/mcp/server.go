// Package mcp exposes the waking side of the agent as an MCP stdio server.
// Tools can write memories and read counters; none can read deep record
// content.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/roguectrl/electricsheep/internal/app"
)

// Server serves the electricsheep tools over MCP.
type Server struct {
	app *app.App
	srv *server.MCPServer
}

// New registers every tool against a.
func New(a *app.App, version string) *Server {
	s := &Server{
		app: a,
		srv: server.NewMCPServer(
			"electricsheep",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}

	s.srv.AddTool(mcp.NewTool("remember",
		mcp.WithDescription("Store an experience: the summary goes to working memory, the full context is encrypted into deep memory for the next dream."),
		mcp.WithString("summary", mcp.Required(), mcp.Description("One-line summary the waking agent will see")),
		mcp.WithString("context", mcp.Description("Full context as a JSON object; defaults to the summary")),
		mcp.WithString("category", mcp.Description("Memory category (default: interaction)")),
	), s.handleRemember)

	s.srv.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Counts of deep memories (total, undreamed, dreamed, per category) and working memory entries."),
	), s.handleMemoryStats)

	s.srv.AddTool(mcp.NewTool("working_memory",
		mcp.WithDescription("Recent working memory, newest last, rendered within the configured token budget."),
		mcp.WithString("category", mcp.Description("Only entries in this category")),
	), s.handleWorkingMemory)

	s.srv.AddTool(mcp.NewTool("budget_status",
		mcp.WithDescription("Today's token usage against the daily budget. The budget resets at 00:00 UTC."),
	), s.handleBudgetStatus)

	s.srv.AddTool(mcp.NewTool("dream_cycle",
		mcp.WithDescription("Run one dream cycle over the undreamed deep memories and return the dream's title and insight."),
	), s.handleDreamCycle)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.srv }

// ServeStdio blocks serving on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.srv)
}
