package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	retry "github.com/appleboy/go-httpretry"
)

// Flavor is the deployment flavor of a Jira instance. Cloud and self-hosted
// deployments differ in API base path, authentication scheme, and
// request-body conventions; the flavor is derived once from the instance's
// base URL at client construction, never hardcoded globally.
type Flavor string

const (
	FlavorCloud  Flavor = "cloud"
	FlavorServer Flavor = "server"
)

// flavorOf derives the deployment flavor from a parsed base URL.
func flavorOf(u *url.URL) Flavor {
	if strings.HasSuffix(u.Hostname(), ".atlassian.net") {
		return FlavorCloud
	}
	return FlavorServer
}

// Client is a configured API client for one Jira instance.
type Client struct {
	baseURL    string
	apiBase    string
	flavor     Flavor
	authHeader string
	http       *retry.Client
}

func newClient(inst Instance, httpClient *retry.Client) (*Client, error) {
	u, err := url.Parse(inst.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	c := &Client{
		baseURL: inst.BaseURL,
		flavor:  flavorOf(u),
		http:    httpClient,
	}

	switch c.flavor {
	case FlavorCloud:
		// Cloud: API v3, basic auth with account email + API token.
		c.apiBase = "/rest/api/3"
		cred := inst.Email + ":" + inst.Token
		c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(cred))
	default:
		// Self-hosted: API v2, personal access token.
		c.apiBase = "/rest/api/2"
		c.authHeader = "Bearer " + inst.Token
	}

	return c, nil
}

// Flavor returns the deployment flavor the client was configured for.
func (c *Client) Flavor() Flavor {
	return c.flavor
}

// Issue is a Jira issue with the fields the tools expose.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the issue fields common to both deployment flavors.
// Description is raw because cloud returns an ADF document object while
// self-hosted returns a plain string.
type IssueFields struct {
	Summary string `json:"summary"`
	Status  struct {
		Name string `json:"name"`
	} `json:"status"`
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Assignee *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Description json.RawMessage `json:"description"`
}

// GetIssue returns a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	var issue Issue
	if err := c.get(ctx, "/issue/"+url.PathEscape(key), nil, &issue); err != nil {
		return nil, fmt.Errorf("getting issue %s: %w", key, err)
	}
	return &issue, nil
}

// SearchIssues runs a JQL query and returns the matching issues.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	q := url.Values{}
	q.Set("jql", jql)
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}
	q.Set("fields", "summary,status,issuetype,assignee,description")

	// Cloud retired the plain search resource in favor of /search/jql.
	searchPath := "/search"
	if c.flavor == FlavorCloud {
		searchPath = "/search/jql"
	}

	var resp struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.get(ctx, searchPath, q, &resp); err != nil {
		return nil, fmt.Errorf("searching issues with %q: %w", jql, err)
	}
	return resp.Issues, nil
}

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(
	ctx context.Context,
	project, issueType, summary, description string,
) (*Issue, error) {
	fields := map[string]any{
		"project":   map[string]string{"key": project},
		"issuetype": map[string]string{"name": issueType},
		"summary":   summary,
	}
	if description != "" {
		if c.flavor == FlavorCloud {
			fields["description"] = adfDocument(description)
		} else {
			fields["description"] = description
		}
	}

	var issue Issue
	if err := c.post(ctx, "/issue", map[string]any{"fields": fields}, &issue); err != nil {
		return nil, fmt.Errorf("creating issue in project %s: %w", project, err)
	}
	return &issue, nil
}

// adfDocument wraps plain text in the Atlassian Document Format envelope
// cloud instances require for rich-text fields.
func adfDocument(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": text},
				},
			},
		},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(ctx, req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+c.apiBase+path,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req, out)
}

// jiraError is the standard Jira error envelope.
type jiraError struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var jerr jiraError
		if jsonErr := json.Unmarshal(body, &jerr); jsonErr == nil {
			var parts []string
			parts = append(parts, jerr.ErrorMessages...)
			for field, msg := range jerr.Errors {
				parts = append(parts, field+": "+msg)
			}
			if len(parts) > 0 {
				return fmt.Errorf(
					"Jira returned status %d: %s",
					resp.StatusCode,
					strings.Join(parts, "; "),
				)
			}
		}
		return fmt.Errorf("Jira returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
