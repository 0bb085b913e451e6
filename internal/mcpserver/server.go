// Package mcpserver wires the ReviewBoard and Jira operations into an MCP
// server. This is the composition root: it creates no business logic of its
// own, only tool registrations. Operation failures are reported back to the
// caller as structured tool errors; the server process never exits on one.
package mcpserver

import (
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rb-mcp/reviewboard-mcp/internal/jira"
	"github.com/rb-mcp/reviewboard-mcp/internal/reviewboard"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds the collaborators the tools dispatch into.
type Deps struct {
	ReviewBoard *reviewboard.Client
	Jira        *jira.Registry
	Logger      *slog.Logger
}

// New creates the MCP server with all tools registered.
func New(deps Deps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"reviewboard-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	listTool := NewListReviewRequestsTool(deps.ReviewBoard, deps.Logger)
	s.AddTool(listTool.Definition(), listTool.Handle)

	getTool := NewGetReviewRequestTool(deps.ReviewBoard, deps.Logger)
	s.AddTool(getTool.Definition(), getTool.Handle)

	diffsTool := NewGetDiffsTool(deps.ReviewBoard, deps.Logger)
	s.AddTool(diffsTool.Definition(), diffsTool.Handle)

	searchTool := NewSearchTool(deps.ReviewBoard, deps.Logger)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	reviewTool := NewCreateReviewTool(deps.ReviewBoard, deps.Logger)
	s.AddTool(reviewTool.Definition(), reviewTool.Handle)

	jiraGetTool := NewJiraGetIssueTool(deps.Jira, deps.Logger)
	s.AddTool(jiraGetTool.Definition(), jiraGetTool.Handle)

	jiraSearchTool := NewJiraSearchIssuesTool(deps.Jira, deps.Logger)
	s.AddTool(jiraSearchTool.Definition(), jiraSearchTool.Handle)

	jiraCreateTool := NewJiraCreateIssueTool(deps.Jira, deps.Logger)
	s.AddTool(jiraCreateTool.Definition(), jiraCreateTool.Handle)

	return s
}

// jsonResult renders v as indented JSON tool output.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
