// Dispatcher MCP server.
// Exposes the status and run history API over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/txdispatch/internal/mcp"
)

func main() {
	baseURL := os.Getenv("TXDISPATCH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:13002"
	}

	s := server.NewMCPServer(
		"txdispatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcptools.RegisterTools(s, mcptools.NewClient(baseURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
