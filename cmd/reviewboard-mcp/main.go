// Command reviewboard-mcp serves ReviewBoard and Jira operations over MCP
// stdio. Authentication against ReviewBoard uses either a static API token
// (REVIEWBOARD_API_TOKEN) or the OAuth2 credentials written by rb-authorize,
// refreshed transparently for the life of the process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rb-mcp/reviewboard-mcp/internal/jira"
	"github.com/rb-mcp/reviewboard-mcp/internal/mcpserver"
	"github.com/rb-mcp/reviewboard-mcp/internal/oauth"
	"github.com/rb-mcp/reviewboard-mcp/internal/reviewboard"
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// stdout carries the MCP protocol; all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	rb, err := buildReviewBoardClient(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	registry, err := jira.LoadRegistry(os.Environ())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Check your JIRA_INSTANCE_<NAME>_* environment variables.")
		os.Exit(1)
	}
	logger.Info("loaded Jira registry", "instances", registry.Names())

	s := mcpserver.New(mcpserver.Deps{
		ReviewBoard: rb,
		Jira:        registry,
		Logger:      logger,
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// buildReviewBoardClient selects the authentication mode: a static API token
// when REVIEWBOARD_API_TOKEN is set, otherwise the OAuth2 token manager
// backed by the credentials file. The two modes are mutually exclusive per
// client.
func buildReviewBoardClient(logger *slog.Logger) (*reviewboard.Client, error) {
	if token := os.Getenv("REVIEWBOARD_API_TOKEN"); token != "" {
		baseURL := os.Getenv("REVIEWBOARD_URL")
		if baseURL == "" {
			return nil, fmt.Errorf(
				"REVIEWBOARD_API_TOKEN is set but REVIEWBOARD_URL is not; set both for static-token mode",
			)
		}
		logger.Info("using static API token authentication", "url", baseURL)
		return reviewboard.NewClientWithToken(baseURL, token)
	}

	path, err := oauth.DefaultCredentialsPath()
	if err != nil {
		return nil, err
	}

	manager, err := oauth.NewManager(path)
	if err != nil {
		return nil, err
	}

	logger.Info("using OAuth2 authentication", "url", manager.ServiceURL(), "credentials", path)
	return reviewboard.NewClientWithManager(manager.ServiceURL(), manager)
}
