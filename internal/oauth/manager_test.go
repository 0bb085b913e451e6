package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

func newTestClient(t *testing.T) *retry.Client {
	t.Helper()
	client, err := retry.NewClient()
	if err != nil {
		t.Fatalf("failed to create retry client: %v", err)
	}
	return client
}

// writeManagerRecord persists rec and returns a manager bound to it.
func writeManagerRecord(t *testing.T, rec *CredentialRecord) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := SaveCredentials(path, rec); err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}

	mgr, err := NewManager(path, WithHTTPClient(newTestClient(t)))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr, path
}

func tokenJSON(accessToken, refreshToken string, expiresIn int) map[string]any {
	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	}
	if refreshToken != "" {
		resp["refresh_token"] = refreshToken
	}
	return resp
}

func TestNewManager_ConfigNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := NewManager(path)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("Expected ErrConfigNotFound, got: %v", err)
	}
	if !strings.Contains(err.Error(), "rb-authorize") {
		t.Errorf("Error should direct the operator to rb-authorize, got: %v", err)
	}
}

func TestAccessToken_FreshTokenNoNetworkCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(tokenJSON("should-not-be-used", "", 3600))
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(time.Hour))
	rec.ReviewBoardURL = server.URL
	mgr, _ := writeManagerRecord(t, rec)

	// Idempotence: two calls in a row return the held token with no side effects
	for i := 0; i < 2; i++ {
		token, err := mgr.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("AccessToken failed: %v", err)
		}
		if token != "access-token-1" {
			t.Errorf("Expected held token, got: %s", token)
		}
	}

	if calls.Load() != 0 {
		t.Errorf("Expected no network calls for a fresh token, got %d", calls.Load())
	}
}

func TestAccessToken_WithinExpiryBufferTriggersRefresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(tokenJSON("AT2", "", 3600))
	}))
	defer server.Close()

	// Expires in 2 minutes: inside the 5-minute buffer, so treated as expired
	rec := testRecord(time.Now().Add(2 * time.Minute))
	rec.ReviewBoardURL = server.URL
	mgr, _ := writeManagerRecord(t, rec)

	token, err := mgr.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "AT2" {
		t.Errorf("Expected refreshed token AT2, got: %s", token)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one refresh call, got %d", calls.Load())
	}
}

func TestAccessToken_ExpiredTokenRefreshAndPersist(t *testing.T) {
	start := time.Now()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("Expected grant_type=refresh_token, got: %s", got)
		}
		if got := r.FormValue("refresh_token"); got != "refresh-token-1" {
			t.Errorf("Expected the held refresh token, got: %s", got)
		}
		if got := r.FormValue("client_id"); got != "client-1" {
			t.Errorf("Expected client_id=client-1, got: %s", got)
		}
		json.NewEncoder(w).Encode(tokenJSON("AT2", "", 3600))
	}))
	defer server.Close()

	rec := testRecord(start.Add(-time.Second)) // already expired
	rec.ReviewBoardURL = server.URL
	mgr, path := writeManagerRecord(t, rec)

	token, err := mgr.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "AT2" {
		t.Errorf("Expected AT2, got: %s", token)
	}

	// The durable record must reflect the refresh
	persisted, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("Failed to reload credentials: %v", err)
	}
	if persisted.AccessToken != "AT2" {
		t.Errorf("Persisted access token not updated: %s", persisted.AccessToken)
	}

	wantExpiry := start.Add(time.Hour).UnixMilli()
	if diff := persisted.ExpiresAt - wantExpiry; diff < 0 || diff > 10_000 {
		t.Errorf("Persisted expires_at %d not within tolerance of %d", persisted.ExpiresAt, wantExpiry)
	}
}

func TestAccessToken_RefreshPreservesRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Response omits refresh_token (fixed mode)
		json.NewEncoder(w).Encode(tokenJSON("AT2", "", 3600))
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(-time.Second))
	rec.ReviewBoardURL = server.URL
	mgr, path := writeManagerRecord(t, rec)

	if _, err := mgr.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}

	persisted, err := LoadCredentials(path)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.RefreshToken != "refresh-token-1" {
		t.Errorf("Refresh token should be preserved, got: %s", persisted.RefreshToken)
	}
}

func TestAccessToken_RefreshRotatesRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenJSON("AT2", "RT2", 3600))
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(-time.Second))
	rec.ReviewBoardURL = server.URL
	mgr, path := writeManagerRecord(t, rec)

	if _, err := mgr.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}

	persisted, err := LoadCredentials(path)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.RefreshToken != "RT2" {
		t.Errorf("Expected rotated refresh token RT2, got: %s", persisted.RefreshToken)
	}
}

func TestAccessToken_RefreshFailureKeepsStateAndRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(-time.Second))
	rec.ReviewBoardURL = server.URL
	mgr, path := writeManagerRecord(t, rec)

	_, err := mgr.AccessToken(context.Background())
	if !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("Expected ErrTokenRefresh, got: %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("Error should carry the remote error payload, got: %v", err)
	}
	if !strings.Contains(err.Error(), "rb-authorize") {
		t.Errorf("Error should direct the operator to rb-authorize, got: %v", err)
	}

	// Held state untouched: the durable record still has the old token
	persisted, loadErr := LoadCredentials(path)
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if persisted.AccessToken != "access-token-1" || persisted.RefreshToken != "refresh-token-1" {
		t.Errorf("Failed refresh must not mutate the record, got: %+v", persisted)
	}

	// No failure caching: the next call re-attempts the refresh
	if _, err := mgr.AccessToken(context.Background()); !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("Expected ErrTokenRefresh on retry, got: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 refresh attempts, got %d", calls.Load())
	}
}

func TestAccessToken_SingleFlightRefresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // hold the flight open so callers pile up
		json.NewEncoder(w).Encode(tokenJSON("AT2", "", 3600))
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(-time.Second))
	rec.ReviewBoardURL = server.URL
	mgr, _ := writeManagerRecord(t, rec)

	const goroutines = 10
	var wg sync.WaitGroup
	tokens := make([]string, goroutines)
	errs := make([]error, goroutines)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = mgr.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if tokens[i] != "AT2" {
			t.Errorf("Caller %d got %s, want AT2", i, tokens[i])
		}
	}

	if calls.Load() != 1 {
		t.Errorf("Expected a single refresh for concurrent callers, got %d", calls.Load())
	}
}

func TestAccessToken_MalformedRefreshResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type": "Bearer"}`) // no access_token
	}))
	defer server.Close()

	rec := testRecord(time.Now().Add(-time.Second))
	rec.ReviewBoardURL = server.URL
	mgr, _ := writeManagerRecord(t, rec)

	_, err := mgr.AccessToken(context.Background())
	if !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("Expected ErrTokenRefresh for malformed response, got: %v", err)
	}
}
