package oauth

import "errors"

// Sentinel errors for the credential lifecycle. The messages carry the
// remedial action because they are shown to the operator verbatim.
var (
	// ErrConfigNotFound indicates no credential file exists yet.
	ErrConfigNotFound = errors.New(
		"no stored credentials found; run rb-authorize to complete OAuth setup",
	)

	// ErrConfigParse indicates the credential file exists but is not a valid record.
	ErrConfigParse = errors.New(
		"stored credentials are unreadable; re-run rb-authorize to replace them",
	)

	// ErrListenerBind indicates the local callback port could not be bound.
	ErrListenerBind = errors.New("failed to bind the OAuth callback port")

	// ErrStateMismatch indicates the callback carried a state value that does
	// not match the one generated for this session. The authorization code is
	// never exchanged in that case.
	ErrStateMismatch = errors.New(
		"authorization callback state mismatch; aborting without exchanging the code",
	)

	// ErrAuthorizationDenied indicates the remote party rejected the grant.
	ErrAuthorizationDenied = errors.New("authorization denied by the server")

	// ErrMalformedCallback indicates the callback request was missing the
	// code or state query parameter.
	ErrMalformedCallback = errors.New(
		"authorization callback missing required code/state parameters",
	)

	// ErrTokenExchange indicates the authorization-code exchange failed.
	ErrTokenExchange = errors.New("authorization code exchange failed")

	// ErrTokenRefresh indicates a refresh-token exchange failed. The
	// previously held credentials are left untouched.
	ErrTokenRefresh = errors.New(
		"token refresh failed; re-run rb-authorize if this persists",
	)
)
