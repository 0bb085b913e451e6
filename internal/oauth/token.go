package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	retry "github.com/appleboy/go-httpretry"
	"golang.org/x/oauth2"
)

const (
	tokenPath     = "/oauth2/token/"
	authorizePath = "/oauth2/authorize/"
)

// tokenResponse is the JSON body of a successful token-endpoint response,
// shared by the authorization-code and refresh-token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// errorResponse is the standard OAuth error payload.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func tokenEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + tokenPath
}

func authorizeEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + authorizePath
}

// requestToken POSTs a form-encoded grant request to the token endpoint and
// decodes the response. Non-2xx responses are returned as *oauth2.RetrieveError
// so callers can inspect the remote error payload.
func requestToken(
	ctx context.Context,
	client *retry.Client,
	endpoint string,
	form url.Values,
) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		endpoint,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if err := validateTokenResponse(tr.AccessToken, tr.TokenType, tr.ExpiresIn); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}

	return &tr, nil
}

// validateTokenResponse validates the OAuth token response fields.
func validateTokenResponse(accessToken, tokenType string, expiresIn int) error {
	if accessToken == "" {
		return errors.New("access_token is empty")
	}

	if expiresIn <= 0 {
		return fmt.Errorf("expires_in must be positive, got: %d", expiresIn)
	}

	// Token type is optional in OAuth 2.0, but if present, should be "Bearer"
	if tokenType != "" && tokenType != "Bearer" {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", tokenType)
	}

	return nil
}

// remoteErrorDetail extracts the remote OAuth error payload from err when it
// is an *oauth2.RetrieveError, for inclusion in surfaced error messages.
func remoteErrorDetail(err error) string {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return err.Error()
	}

	var er errorResponse
	if jsonErr := json.Unmarshal(rerr.Body, &er); jsonErr == nil && er.Error != "" {
		if er.ErrorDescription != "" {
			return fmt.Sprintf("%s: %s", er.Error, er.ErrorDescription)
		}
		return er.Error
	}

	return fmt.Sprintf("status %d: %s", rerr.Response.StatusCode, string(rerr.Body))
}
