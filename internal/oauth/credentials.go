package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CredentialRecord is the durable unit of OAuth state: the bearer credential,
// the refresh credential used to renew it, and the confidential-client
// identity needed to perform that renewal. It is created once by rb-authorize
// and mutated in place by every successful refresh.
type CredentialRecord struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	TokenType      string `json:"token_type"`
	ExpiresAt      int64  `json:"expires_at"` // epoch milliseconds
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	ReviewBoardURL string `json:"reviewboard_url"`
}

// Expiry returns ExpiresAt as a time.Time.
func (r *CredentialRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// DefaultCredentialsPath returns the credential file location:
// RBMCP_CREDENTIALS_FILE if set, otherwise ~/.reviewboard-mcp/credentials.json.
func DefaultCredentialsPath() (string, error) {
	if p := os.Getenv("RBMCP_CREDENTIALS_FILE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".reviewboard-mcp", "credentials.json"), nil
}

// LoadCredentials reads and validates the credential record at path.
func LoadCredentials(path string) (*CredentialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (looked in %s)", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var rec CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if rec.AccessToken == "" || rec.ReviewBoardURL == "" {
		return nil, fmt.Errorf("%w: missing access_token or reviewboard_url", ErrConfigParse)
	}

	return &rec, nil
}

// SaveCredentials writes rec to path with owner-only permissions.
// The write is guarded by a lock file and performed as temp-write-then-rename
// so a crash mid-write never leaves a truncated record behind.
func SaveCredentials(path string, rec *CredentialRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating credentials directory: %w", err)
		}
	}

	lock, err := acquireFileLock(path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
