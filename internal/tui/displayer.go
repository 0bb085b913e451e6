package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the authorization flow.
type Displayer interface {
	Banner()
	ListenerReady(port int)
	AuthURLReady(url string, deadline time.Time)
	CallbackReceived()
	Exchanging()
	ExchangeOK()
	TokenSaved(path string)
	TokenSaveFailed(err error)
	Done(preview, tokenType string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== ReviewBoard OAuth2 Authorization Setup ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) ListenerReady(port int) {
	fmt.Fprintf(p.w, "Callback listener ready on http://127.0.0.1:%d/callback\n", port)
}

func (p *PlainDisplayer) AuthURLReady(url string, deadline time.Time) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "Open this link in your browser to authorize:\n%s\n", url)
	fmt.Fprintln(p.w, "----------------------------------------")
	if !deadline.IsZero() {
		fmt.Fprintf(p.w, "Waiting for authorization (%s remaining)...\n",
			time.Until(deadline).Round(time.Second))
	} else {
		fmt.Fprintln(p.w, "Waiting for authorization (Ctrl+C to cancel)...")
	}
}

func (p *PlainDisplayer) CallbackReceived() {
	fmt.Fprintln(p.w, "\nAuthorization callback received!")
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging authorization code for tokens...")
}

func (p *PlainDisplayer) ExchangeOK() {
	fmt.Fprintln(p.w, "Authorization successful!")
}

func (p *PlainDisplayer) TokenSaved(path string) {
	fmt.Fprintf(p.w, "Credentials saved to %s\n", path)
}

func (p *PlainDisplayer) TokenSaveFailed(err error) {
	fmt.Fprintf(p.w, "Warning: Failed to save credentials: %v\n", err)
}

func (p *PlainDisplayer) Done(preview, tokenType string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Current Token Info:")
	fmt.Fprintf(p.w, "Access Token: %s...\n", preview)
	fmt.Fprintf(p.w, "Token Type: %s\n", tokenType)
	fmt.Fprintf(p.w, "Expires In: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
	fmt.Fprintln(p.w, "\nYou can now start the reviewboard-mcp server.")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                              {}
func (NoopDisplayer) ListenerReady(_ int)                  {}
func (NoopDisplayer) AuthURLReady(_ string, _ time.Time)   {}
func (NoopDisplayer) CallbackReceived()                    {}
func (NoopDisplayer) Exchanging()                          {}
func (NoopDisplayer) ExchangeOK()                          {}
func (NoopDisplayer) TokenSaved(_ string)                  {}
func (NoopDisplayer) TokenSaveFailed(_ error)              {}
func (NoopDisplayer) Done(_, _ string, _ time.Duration)    {}
func (NoopDisplayer) Fatal(_ error)                        {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) ListenerReady(port int) {
	t.p.Send(MsgListenerReady{Port: port})
}

func (t *ProgramDisplayer) AuthURLReady(url string, deadline time.Time) {
	t.p.Send(MsgAuthURLReady{URL: url, Deadline: deadline})
}

func (t *ProgramDisplayer) CallbackReceived() {
	t.p.Send(MsgCallbackReceived{})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) ExchangeOK() {
	t.p.Send(MsgExchangeOK{})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) TokenSaveFailed(err error) {
	t.p.Send(MsgTokenSaveFailed{Err: err})
}

func (t *ProgramDisplayer) Done(preview, tokenType string, expiresIn time.Duration) {
	t.p.Send(MsgDone{Preview: preview, TokenType: tokenType, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
