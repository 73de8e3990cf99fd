package cli

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/roguectrl/electricsheep/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdin/stdout",
		Long: `Starts an MCP stdio server exposing remember, memory_stats, working_memory,
budget_status and dream_cycle. Logs go to stderr.

Example client entry:
  {"command": "electricsheep", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.Log.Info("mcp server starting", "version", version)
			return mcpserver.New(a, version).ServeStdio()
		},
	}
}
