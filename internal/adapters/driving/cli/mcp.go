package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/patentgov/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the evaluate_query and verify_collection tools and the
patentgov://collections resource. By default it communicates over stdio
using JSON-RPC and can be used with any MCP-compatible AI assistant.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default)
  patentgov mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  patentgov mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "patentgov": {
        "command": "/path/to/patentgov",
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

	ctx := cmd.Context()
	builds, doneBuilds, err := openBuildService(ctx, appConfig, false)
	if err != nil {
		return err
	}
	defer doneBuilds.Close()

	evaluator, done, err := openEvaluator(ctx, appConfig)
	if err != nil {
		return err
	}
	defer done.Close()

	server, err := mcp.NewServer(&mcp.Ports{
		Evaluator: evaluator,
		Builds:    builds,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(ctx, addr)
	}

	return server.Run(ctx)
}
