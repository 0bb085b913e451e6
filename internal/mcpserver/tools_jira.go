package mcpserver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rb-mcp/reviewboard-mcp/internal/jira"
)

// JiraGetIssueTool fetches a single issue from a named Jira instance.
type JiraGetIssueTool struct {
	registry *jira.Registry
	log      *slog.Logger
}

func NewJiraGetIssueTool(registry *jira.Registry, log *slog.Logger) *JiraGetIssueTool {
	return &JiraGetIssueTool{registry: registry, log: log}
}

func (t *JiraGetIssueTool) Definition() mcp.Tool {
	return mcp.NewTool("jira_get_issue",
		mcp.WithDescription("Get a Jira issue by key from a configured instance."),
		mcp.WithString("instance",
			mcp.Required(),
			mcp.Description("The configured Jira instance name (case-insensitive)."),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The issue key, e.g. PROJ-123."),
		),
	)
}

func (t *JiraGetIssueTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "jira_get_issue", "request_id", uuid.NewString())

	instance, err := req.RequireString("instance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := t.registry.Client(instance)
	if err != nil {
		log.Error("instance lookup failed", "instance", instance, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := client.GetIssue(ctx, key)
	if err != nil {
		log.Error("operation failed", "instance", instance, "key", key, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("fetched issue", "instance", instance, "key", key)
	return jsonResult(issue)
}

// JiraSearchIssuesTool runs a JQL query against a named Jira instance.
type JiraSearchIssuesTool struct {
	registry *jira.Registry
	log      *slog.Logger
}

func NewJiraSearchIssuesTool(registry *jira.Registry, log *slog.Logger) *JiraSearchIssuesTool {
	return &JiraSearchIssuesTool{registry: registry, log: log}
}

func (t *JiraSearchIssuesTool) Definition() mcp.Tool {
	return mcp.NewTool("jira_search_issues",
		mcp.WithDescription("Search Jira issues with a JQL query on a configured instance."),
		mcp.WithString("instance",
			mcp.Required(),
			mcp.Description("The configured Jira instance name (case-insensitive)."),
		),
		mcp.WithString("jql",
			mcp.Required(),
			mcp.Description("The JQL query, e.g. 'project = PROJ AND status = Open'."),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of issues to return (default 25)."),
		),
	)
}

func (t *JiraSearchIssuesTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "jira_search_issues", "request_id", uuid.NewString())

	instance, err := req.RequireString("instance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jql, err := req.RequireString("jql")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := t.registry.Client(instance)
	if err != nil {
		log.Error("instance lookup failed", "instance", instance, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	issues, err := client.SearchIssues(ctx, jql, req.GetInt("max_results", 25))
	if err != nil {
		log.Error("operation failed", "instance", instance, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("searched issues", "instance", instance, "count", len(issues))
	return jsonResult(map[string]any{"issues": issues})
}

// JiraCreateIssueTool creates an issue on a named Jira instance.
type JiraCreateIssueTool struct {
	registry *jira.Registry
	log      *slog.Logger
}

func NewJiraCreateIssueTool(registry *jira.Registry, log *slog.Logger) *JiraCreateIssueTool {
	return &JiraCreateIssueTool{registry: registry, log: log}
}

func (t *JiraCreateIssueTool) Definition() mcp.Tool {
	return mcp.NewTool("jira_create_issue",
		mcp.WithDescription("Create a Jira issue on a configured instance."),
		mcp.WithString("instance",
			mcp.Required(),
			mcp.Description("The configured Jira instance name (case-insensitive)."),
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("The project key, e.g. PROJ."),
		),
		mcp.WithString("issue_type",
			mcp.Required(),
			mcp.Description("The issue type name, e.g. Bug or Task."),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("The issue summary."),
		),
		mcp.WithString("description",
			mcp.Description("The issue description."),
		),
	)
}

func (t *JiraCreateIssueTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "jira_create_issue", "request_id", uuid.NewString())

	instance, err := req.RequireString("instance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issueType, err := req.RequireString("issue_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := req.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := t.registry.Client(instance)
	if err != nil {
		log.Error("instance lookup failed", "instance", instance, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := client.CreateIssue(ctx, project, issueType, summary,
		req.GetString("description", ""))
	if err != nil {
		log.Error("operation failed", "instance", instance, "project", project, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("created issue", "instance", instance, "key", issue.Key)
	return jsonResult(issue)
}
