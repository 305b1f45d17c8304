package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/repolens/internal/adapters/driving/mcp"
	"github.com/custodia-labs/repolens/internal/logger"
)

// shutdownTimeout bounds how long serve waits for running stages to stop.
const shutdownTimeout = 30 * time.Second

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP
  - Prometheus metrics under /metrics

Stage tools return within the response budget (ingestion.response_budget).
A stage still running then reports running=true and continues in the
background; poll get_status to follow it.

Examples:
  # Stdio mode (default, for Claude Desktop)
  repolens mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  repolens mcp serve --port 8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "repolens": {
        "command": "/path/to/repolens",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	if ingestionService == nil {
		return errNotConfigured
	}

	ports := &mcp.Ports{
		Ingestion: ingestionService,
		Query:     queryService,
		Health:    healthService,
	}
	if settingsService != nil {
		if st, err := settingsService.Get(); err == nil {
			ports.ResponseBudget = st.Ingestion.ResponseBudget
		}
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	defer stopWorkers()

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(ctx, addr)
	}

	err = server.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopWorkers cancels background stages so their progress is recorded as
// failed rather than left in progress.
func stopWorkers() {
	if shutdownFunc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownFunc(ctx); err != nil {
		logger.Warn("stopping stage workers: %v", err)
	}
}
