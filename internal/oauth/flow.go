package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"

	"github.com/rb-mcp/reviewboard-mcp/internal/tui"
)

const (
	// DefaultCallbackPort is used when OAUTH_CALLBACK_PORT is not set.
	DefaultCallbackPort = 3000

	callbackPath = "/callback"
	authScope    = "read write"
)

// FlowConfig configures one authorization-code grant flow.
type FlowConfig struct {
	ServerURL    string
	ClientID     string
	ClientSecret string

	// CallbackPort is the local port for the redirect listener.
	// Zero picks an ephemeral port (used by tests).
	CallbackPort int

	// WaitTimeout bounds how long the flow waits for the browser redirect.
	// Zero waits until the context is canceled.
	WaitTimeout time.Duration

	// HTTPClient overrides the client used for the code exchange.
	HTTPClient *retry.Client
}

// Flow obtains an initial CredentialRecord via the OAuth2 authorization-code
// grant: it opens a one-shot local listener for the redirect, hands the user
// an authorization URL, validates the anti-forgery state, and exchanges the
// returned code for a token pair.
type Flow struct {
	cfg  FlowConfig
	http *retry.Client
}

// NewFlow validates cfg and returns a Flow.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.ServerURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New(
			"server URL, client ID and client secret are all required for OAuth setup",
		)
	}

	f := &Flow{cfg: cfg, http: cfg.HTTPClient}
	if f.http == nil {
		client, err := retry.NewBackgroundClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		f.http = client
	}
	return f, nil
}

// generateState returns a 256-bit random opaque token used as the CSRF
// defense for one authorization session.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// callbackResult is the outcome of the one redirect request the listener
// consumes.
type callbackResult struct {
	code string
	err  error
}

// Run executes the full flow and returns the assembled credential record.
// Persisting the record is the caller's responsibility. On context
// cancellation or wait timeout, the listener is torn down and no record is
// returned.
func (f *Flow) Run(ctx context.Context, d tui.Displayer) (*CredentialRecord, error) {
	state, err := generateState()
	if err != nil {
		return nil, err
	}

	// Bind before presenting the URL so the browser cannot redirect into a
	// port nobody is listening on yet.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.cfg.CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v", ErrListenerBind, f.cfg.CallbackPort, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	results := make(chan callbackResult, 1)
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		res, status, page := classifyCallback(r.URL.Query(), state)

		delivered := false
		once.Do(func() {
			delivered = true
			results <- res
		})
		if !delivered {
			// A second, stale or replayed redirect. Never processed.
			writeHTMLPage(w, http.StatusGone, "Already handled",
				"This authorization session has already completed. You can close this tab.")
			return
		}

		writeHTMLPage(w, status, page.title, page.detail)
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln) //nolint:errcheck // always ErrServerClosed after Shutdown
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	d.ListenerReady(port)

	var deadline time.Time
	var timeout <-chan time.Time
	if f.cfg.WaitTimeout > 0 {
		deadline = time.Now().Add(f.cfg.WaitTimeout)
		timer := time.NewTimer(f.cfg.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	d.AuthURLReady(f.authorizeURL(state, redirectURI), deadline)

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, errors.New("timed out waiting for the browser authorization")
	case res = <-results:
	}

	if res.err != nil {
		return nil, res.err
	}

	d.CallbackReceived()
	d.Exchanging()

	tr, err := f.exchangeCode(ctx, res.code, redirectURI)
	if err != nil {
		return nil, err
	}

	d.ExchangeOK()

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &CredentialRecord{
		AccessToken:    tr.AccessToken,
		RefreshToken:   tr.RefreshToken,
		TokenType:      tokenType,
		ExpiresAt:      time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).UnixMilli(),
		ClientID:       f.cfg.ClientID,
		ClientSecret:   f.cfg.ClientSecret,
		ReviewBoardURL: f.cfg.ServerURL,
	}, nil
}

// authorizeURL builds the URL the user opens in a browser.
func (f *Flow) authorizeURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", authScope)
	return authorizeEndpoint(f.cfg.ServerURL) + "?" + q.Encode()
}

// exchangeCode POSTs the authorization-code grant request.
func (f *Flow) exchangeCode(
	ctx context.Context,
	code, redirectURI string,
) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", f.cfg.ClientID)
	form.Set("client_secret", f.cfg.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	tr, err := requestToken(ctx, f.http, tokenEndpoint(f.cfg.ServerURL), form)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenExchange, remoteErrorDetail(err))
	}
	return tr, nil
}

// htmlPage is what the user's browser is told about the outcome.
type htmlPage struct {
	title  string
	detail string
}

// classifyCallback maps the redirect query parameters to a flow outcome and
// the page shown to the browser. A state mismatch is classified here, before
// the code ever reaches the exchange step.
func classifyCallback(q url.Values, wantState string) (callbackResult, int, htmlPage) {
	if errParam := q.Get("error"); errParam != "" {
		return callbackResult{err: fmt.Errorf("%w: %s", ErrAuthorizationDenied, errParam)},
			http.StatusForbidden,
			htmlPage{
				title:  "Authorization denied",
				detail: "The server reported: " + errParam + ". You can close this tab.",
			}
	}

	code := q.Get("code")
	gotState := q.Get("state")
	if code == "" || gotState == "" {
		return callbackResult{err: ErrMalformedCallback},
			http.StatusBadRequest,
			htmlPage{
				title:  "Malformed callback",
				detail: "The redirect was missing the code or state parameter.",
			}
	}

	if gotState != wantState {
		return callbackResult{err: ErrStateMismatch},
			http.StatusForbidden,
			htmlPage{
				title:  "State mismatch",
				detail: "The state parameter did not match this session. " +
					"The authorization code was discarded.",
			}
	}

	return callbackResult{code: code},
		http.StatusOK,
		htmlPage{
			title:  "Authorization complete",
			detail: "You can close this tab and return to the terminal.",
		}
}

func writeHTMLPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; margin: 4em auto; max-width: 40em;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, detail)
}
