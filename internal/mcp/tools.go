package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/txdispatch/pkg/types"
)

// RegisterTools registers all dispatcher tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	s.AddTool(gomcp.NewTool("dispatch_status",
		gomcp.WithDescription("Get the current dispatcher run: kind, state, submitted/accepted/confirmed/failed/timed-out counts, in-flight units, TPS and latency percentiles."),
	), statusHandler(client))

	s.AddTool(gomcp.NewTool("dispatch_health",
		gomcp.WithDescription("Check RPC connectivity of every configured node."),
	), healthHandler(client))

	s.AddTool(gomcp.NewTool("dispatch_runs",
		gomcp.WithDescription("List past dispatcher runs with summary counts, newest first (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	), runsHandler(client))

	s.AddTool(gomcp.NewTool("dispatch_run_detail",
		gomcp.WithDescription("Get a past run by ID with its configuration and latency breakdown."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	), runDetailHandler(client))

	s.AddTool(gomcp.NewTool("dispatch_run_txs",
		gomcp.WithDescription("Get the audited transactions of a run (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max transactions to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	), runTxsHandler(client))

	s.AddTool(gomcp.NewTool("dispatch_delete_run",
		gomcp.WithDescription("Delete a past run and its transaction log. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID to delete"),
		),
	), deleteRunHandler(client))
}

func statusHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		var st types.StatusResponse
		if err := client.Get(ctx, "/v1/status", &st); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Dispatcher unreachable: %v\n\nIs txdispatch running with --listen?", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(st)), nil
	}
}

func healthHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		var ready readyResponse
		err := client.Get(ctx, "/ready", &ready)

		// A 503 still carries the per-check breakdown.
		var httpErr *HTTPError
		if err != nil && !(errors.As(err, &httpErr) && len(ready.Checks) > 0) {
			return gomcp.NewToolResultError(fmt.Sprintf("Dispatcher unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(ready)), nil
	}
}

func runsHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		path := fmt.Sprintf("/v1/runs?limit=%d&offset=%d", req.GetInt("limit", 10), req.GetInt("offset", 0))

		var page types.RunListResponse
		if err := client.Get(ctx, path, &page); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run history failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRuns(page)), nil
	}
}

func runDetailHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}

		var run types.RunDetail
		if err := client.Get(ctx, "/v1/runs/"+url.PathEscape(id), &run); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(run)), nil
	}
}

func runTxsHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		path := fmt.Sprintf("/v1/runs/%s/transactions?limit=%d&offset=%d",
			url.PathEscape(id), req.GetInt("limit", 50), req.GetInt("offset", 0))

		var page types.TxListResponse
		if err := client.Get(ctx, path, &page); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run transactions failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunTxs(page)), nil
	}
}

func deleteRunHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		if err := client.Delete(ctx, "/v1/runs/"+url.PathEscape(id)); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	}
}
