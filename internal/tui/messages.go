package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgListenerReady signals that the local callback listener is accepting
// connections.
type MsgListenerReady struct{ Port int }

// MsgAuthURLReady signals that the authorization URL is ready for the user
// to open. Deadline is the moment the flow gives up waiting; zero means the
// flow waits until interrupted.
type MsgAuthURLReady struct {
	URL      string
	Deadline time.Time
}

// MsgCallbackReceived signals that the browser redirect arrived.
type MsgCallbackReceived struct{}

// MsgExchanging signals that the authorization code is being exchanged.
type MsgExchanging struct{}

// MsgExchangeOK signals that the code exchange succeeded.
type MsgExchangeOK struct{}

// MsgTokenSaved signals that credentials were saved to disk.
type MsgTokenSaved struct{ Path string }

// MsgTokenSaveFailed signals that saving credentials failed.
type MsgTokenSaveFailed struct{ Err error }

// MsgDone signals successful completion of the authorization flow.
type MsgDone struct {
	Preview   string
	TokenType string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
