package mcpserver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rb-mcp/reviewboard-mcp/internal/reviewboard"
)

// ListReviewRequestsTool lists review requests with optional filters.
type ListReviewRequestsTool struct {
	rb  *reviewboard.Client
	log *slog.Logger
}

func NewListReviewRequestsTool(rb *reviewboard.Client, log *slog.Logger) *ListReviewRequestsTool {
	return &ListReviewRequestsTool{rb: rb, log: log}
}

func (t *ListReviewRequestsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_review_requests",
		mcp.WithDescription("List review requests on the ReviewBoard server, newest first."),
		mcp.WithString("status",
			mcp.Description("Filter by status: pending, submitted, discarded, or all."),
		),
		mcp.WithString("from_user",
			mcp.Description("Only review requests submitted by this username."),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of review requests to return (default 25)."),
		),
	)
}

func (t *ListReviewRequestsTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "list_review_requests", "request_id", uuid.NewString())

	opts := reviewboard.ListOptions{
		Status:     req.GetString("status", ""),
		FromUser:   req.GetString("from_user", ""),
		MaxResults: req.GetInt("max_results", 25),
	}

	requests, total, err := t.rb.ListReviewRequests(ctx, opts)
	if err != nil {
		log.Error("operation failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("listed review requests", "returned", len(requests), "total", total)
	return jsonResult(map[string]any{
		"review_requests": requests,
		"total_results":   total,
	})
}

// GetReviewRequestTool fetches a single review request by id.
type GetReviewRequestTool struct {
	rb  *reviewboard.Client
	log *slog.Logger
}

func NewGetReviewRequestTool(rb *reviewboard.Client, log *slog.Logger) *GetReviewRequestTool {
	return &GetReviewRequestTool{rb: rb, log: log}
}

func (t *GetReviewRequestTool) Definition() mcp.Tool {
	return mcp.NewTool("get_review_request",
		mcp.WithDescription("Get a single review request by its numeric id."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The review request id."),
		),
	)
}

func (t *GetReviewRequestTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "get_review_request", "request_id", uuid.NewString())

	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rr, err := t.rb.GetReviewRequest(ctx, id)
	if err != nil {
		log.Error("operation failed", "id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("fetched review request", "id", id)
	return jsonResult(rr)
}

// GetDiffsTool lists the diff revisions on a review request.
type GetDiffsTool struct {
	rb  *reviewboard.Client
	log *slog.Logger
}

func NewGetDiffsTool(rb *reviewboard.Client, log *slog.Logger) *GetDiffsTool {
	return &GetDiffsTool{rb: rb, log: log}
}

func (t *GetDiffsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_review_request_diffs",
		mcp.WithDescription("List the diff revisions uploaded to a review request."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The review request id."),
		),
	)
}

func (t *GetDiffsTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "get_review_request_diffs", "request_id", uuid.NewString())

	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	diffs, err := t.rb.GetDiffs(ctx, id)
	if err != nil {
		log.Error("operation failed", "id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("fetched diffs", "id", id, "count", len(diffs))
	return jsonResult(map[string]any{"diffs": diffs})
}

// SearchTool performs full-text search on the ReviewBoard server.
type SearchTool struct {
	rb  *reviewboard.Client
	log *slog.Logger
}

func NewSearchTool(rb *reviewboard.Client, log *slog.Logger) *SearchTool {
	return &SearchTool{rb: rb, log: log}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_reviewboard",
		mcp.WithDescription("Full-text search across review requests and users."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search text."),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default 25)."),
		),
	)
}

func (t *SearchTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "search_reviewboard", "request_id", uuid.NewString())

	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.rb.Search(ctx, query, req.GetInt("max_results", 25))
	if err != nil {
		log.Error("operation failed", "query", query, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("searched", "query", query, "review_requests", len(result.ReviewRequests))
	return jsonResult(result)
}

// CreateReviewTool posts a review on a review request.
type CreateReviewTool struct {
	rb  *reviewboard.Client
	log *slog.Logger
}

func NewCreateReviewTool(rb *reviewboard.Client, log *slog.Logger) *CreateReviewTool {
	return &CreateReviewTool{rb: rb, log: log}
}

func (t *CreateReviewTool) Definition() mcp.Tool {
	return mcp.NewTool("create_review",
		mcp.WithDescription("Post a review on a review request."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The review request id."),
		),
		mcp.WithString("body_top",
			mcp.Required(),
			mcp.Description("The review comment text."),
		),
		mcp.WithBoolean("ship_it",
			mcp.Description("Mark the review as Ship It (default false)."),
		),
		mcp.WithBoolean("publish",
			mcp.Description("Publish immediately instead of leaving a draft (default false)."),
		),
	)
}

func (t *CreateReviewTool) Handle(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	log := t.log.With("tool", "create_review", "request_id", uuid.NewString())

	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bodyTop, err := req.RequireString("body_top")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	review, err := t.rb.CreateReview(
		ctx,
		id,
		bodyTop,
		req.GetBool("ship_it", false),
		req.GetBool("publish", false),
	)
	if err != nil {
		log.Error("operation failed", "id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Info("created review", "id", id, "review_id", review.ID)
	return jsonResult(review)
}
