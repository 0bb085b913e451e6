package oauth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"golang.org/x/sync/singleflight"
)

// expiryBuffer is how long before actual expiry a token is treated as
// expired. Keeps a token from dying mid-request.
const expiryBuffer = 5 * time.Minute

// Manager keeps a bearer credential valid across an unbounded sequence of
// API calls. It loads the durable record once at construction, hands out the
// held token while it is fresh, and transparently performs a single-flight
// refresh-token exchange when it is not.
type Manager struct {
	path string
	http *retry.Client
	now  func() time.Time

	mu  sync.Mutex
	rec *CredentialRecord

	refresh singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient replaces the HTTP client used for refresh exchanges.
func WithHTTPClient(c *retry.Client) ManagerOption {
	return func(m *Manager) { m.http = c }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager loads the credential record at path and returns a Manager bound
// to it. Returns ErrConfigNotFound when the file is absent and ErrConfigParse
// when it is present but not a valid record.
func NewManager(path string, opts ...ManagerOption) (*Manager, error) {
	rec, err := LoadCredentials(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		path: path,
		rec:  rec,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.http == nil {
		client, err := retry.NewBackgroundClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		m.http = client
	}

	return m, nil
}

// ServiceURL returns the base URL of the service the credentials belong to.
func (m *Manager) ServiceURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.ReviewBoardURL
}

// AccessToken returns an access token that is valid for at least the expiry
// buffer. The fresh-token path performs no I/O. When the held token is at or
// past the buffer, one refresh-token exchange runs regardless of how many
// callers are waiting; all of them receive its result. A failed refresh
// leaves the held record untouched, and the next call re-attempts.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.freshLocked() {
		token := m.rec.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	v, err, _ := m.refresh.Do("refresh", func() (any, error) {
		// Re-check under the lock: a coalesced caller may arrive just after
		// the previous flight completed.
		m.mu.Lock()
		if m.freshLocked() {
			token := m.rec.AccessToken
			m.mu.Unlock()
			return token, nil
		}
		snapshot := *m.rec
		m.mu.Unlock()

		tr, err := m.exchangeRefreshToken(ctx, &snapshot)
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		m.rec.AccessToken = tr.AccessToken
		if tr.RefreshToken != "" {
			// Rotation: the server issued a replacement refresh token.
			m.rec.RefreshToken = tr.RefreshToken
		}
		if tr.TokenType != "" {
			m.rec.TokenType = tr.TokenType
		}
		m.rec.ExpiresAt = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UnixMilli()
		updated := *m.rec
		m.mu.Unlock()

		if err := SaveCredentials(m.path, &updated); err != nil {
			return "", fmt.Errorf("persisting refreshed credentials: %w", err)
		}

		return updated.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// freshLocked reports whether the held token expires strictly after
// now + expiryBuffer. Caller must hold m.mu.
func (m *Manager) freshLocked() bool {
	return m.rec.Expiry().After(m.now().Add(expiryBuffer))
}

func (m *Manager) exchangeRefreshToken(
	ctx context.Context,
	rec *CredentialRecord,
) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rec.RefreshToken)
	form.Set("client_id", rec.ClientID)
	form.Set("client_secret", rec.ClientSecret)

	tr, err := requestToken(ctx, m.http, tokenEndpoint(rec.ReviewBoardURL), form)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenRefresh, remoteErrorDetail(err))
	}
	return tr, nil
}
