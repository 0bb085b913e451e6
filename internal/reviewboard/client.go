// Package reviewboard is an authenticated client for the ReviewBoard Web API.
// Call sites never touch token state: authentication is injected by a
// request-preparation transport immediately before each request is sent.
package reviewboard

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// TokenSource supplies a currently-valid bearer token. Satisfied by
// *oauth.Manager.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client wraps an HTTP client so every outgoing call carries a valid
// credential. It is constructed in exactly one of two modes: OAuth2 (tokens
// fetched fresh from a TokenSource per request) or static API token.
type Client struct {
	baseURL string
	http    *retry.Client
}

// NewClientWithManager returns a Client that asks src for a bearer token
// before every request. The fresh-token path in the manager is I/O-free, so
// fetching per request is cheap.
func NewClientWithManager(baseURL string, src TokenSource) (*Client, error) {
	if src == nil {
		return nil, errors.New("token source is required")
	}
	return newClient(baseURL, &managerTransport{src: src, base: baseTransport()})
}

// NewClientWithToken returns a Client that sends a static pre-shared API
// token on every request. No refresh behavior.
func NewClientWithToken(baseURL, apiToken string) (*Client, error) {
	if apiToken == "" {
		return nil, errors.New("API token is required")
	}
	return newClient(baseURL, &staticTransport{token: apiToken, base: baseTransport()})
}

func newClient(baseURL string, transport http.RoundTripper) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ReviewBoard base URL is required")
	}

	client, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(&http.Client{Transport: transport}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}, nil
}

// baseTransport builds the transport shared by both authentication modes.
// ReviewBoard deployments commonly sit behind a self-managed internal CA, so
// certificate verification is relaxed for this client's connections only —
// never as a process-wide default.
func baseTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // internal CA; scoped to this client
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// managerTransport sets "Authorization: Bearer <token>" on each request,
// fetching the token immediately before the request is sent. A retrieval
// failure aborts the request before any bytes hit the wire.
type managerTransport struct {
	src  TokenSource
	base http.RoundTripper
}

func (t *managerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.src.AccessToken(req.Context())
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

// staticTransport sets the ReviewBoard API-token scheme on each request.
type staticTransport struct {
	token string
	base  http.RoundTripper
}

func (t *staticTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "token "+t.token)
	return t.base.RoundTrip(clone)
}

// apiError is the ReviewBoard error envelope.
type apiError struct {
	Stat string `json:"stat"`
	Err  struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"err"`
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(ctx, req, out)
}

// postForm performs an authenticated form-encoded POST and decodes the JSON
// response into out.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
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
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Err.Msg != "" {
			return fmt.Errorf(
				"ReviewBoard API error %d: %s (HTTP %d)",
				apiErr.Err.Code,
				apiErr.Err.Msg,
				resp.StatusCode,
			)
		}
		return fmt.Errorf("ReviewBoard returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
