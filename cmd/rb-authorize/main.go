// Command rb-authorize performs the one-shot OAuth2 authorization-code setup
// for a ReviewBoard server and writes the resulting credentials to disk for
// the reviewboard-mcp server to use.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	tea "charm.land/bubbletea/v2"

	"github.com/rb-mcp/reviewboard-mcp/internal/oauth"
	"github.com/rb-mcp/reviewboard-mcp/internal/tui"
)

var (
	serverURL         string
	clientID          string
	clientSecret      string
	callbackPort      int
	credentialsFile   string
	flagServerURL     *string
	flagClientID      *string
	flagClientSecret  *string
	flagCallbackPort  *int
	flagTokenFile     *string
	configInitialized bool
)

// waitTimeout bounds how long we wait for the user to complete the browser
// authorization before giving up.
const waitTimeout = 5 * time.Minute

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Define flags (but don't parse yet to avoid conflicts with test flags)
	flagServerURL = flag.String(
		"server-url",
		"",
		"ReviewBoard server URL (required, or set REVIEWBOARD_URL env)",
	)
	flagClientID = flag.String(
		"client-id",
		"",
		"OAuth client ID (required, or set REVIEWBOARD_CLIENT_ID env)",
	)
	flagClientSecret = flag.String(
		"client-secret",
		"",
		"OAuth client secret (required, or set REVIEWBOARD_CLIENT_SECRET env)",
	)
	flagCallbackPort = flag.Int(
		"callback-port",
		0,
		"Local OAuth callback port (default: 3000 or OAUTH_CALLBACK_PORT env)",
	)
	flagTokenFile = flag.String(
		"token-file",
		"",
		"Credentials file (default: ~/.reviewboard-mcp/credentials.json or RBMCP_CREDENTIALS_FILE env)",
	)
}

// initConfig parses flags and initializes configuration
// Separated from init() to avoid conflicts with test flag parsing
func initConfig() {
	if configInitialized {
		return
	}
	configInitialized = true

	flag.Parse()

	// Priority: flag > env > default
	serverURL = getConfig(*flagServerURL, "REVIEWBOARD_URL", "")
	clientID = getConfig(*flagClientID, "REVIEWBOARD_CLIENT_ID", "")
	clientSecret = getConfig(*flagClientSecret, "REVIEWBOARD_CLIENT_SECRET", "")

	callbackPort = *flagCallbackPort
	if callbackPort == 0 {
		port, err := strconv.Atoi(getEnv("OAUTH_CALLBACK_PORT", strconv.Itoa(oauth.DefaultCallbackPort)))
		if err != nil || port < 1 || port > 65535 {
			fmt.Fprintln(os.Stderr, "Error: OAUTH_CALLBACK_PORT must be a valid port number")
			os.Exit(1)
		}
		callbackPort = port
	}

	credentialsFile = *flagTokenFile
	if credentialsFile == "" {
		path, err := oauth.DefaultCredentialsPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		credentialsFile = path
	}

	// All three OAuth inputs are required before the listener ever starts.
	var missing []string
	if serverURL == "" {
		missing = append(missing, "REVIEWBOARD_URL (or -server-url)")
	}
	if clientID == "" {
		missing = append(missing, "REVIEWBOARD_CLIENT_ID (or -client-id)")
	}
	if clientSecret == "" {
		missing = append(missing, "REVIEWBOARD_CLIENT_SECRET (or -client-secret)")
	}
	if len(missing) > 0 {
		fmt.Fprintln(os.Stderr, "Error: missing required configuration:")
		for _, m := range missing {
			fmt.Fprintf(os.Stderr, "  - %s\n", m)
		}
		fmt.Fprintln(os.Stderr, "\nRegister an OAuth2 application in the ReviewBoard admin UI")
		fmt.Fprintln(os.Stderr, "and set these values via flags, environment, or a .env file.")
		os.Exit(1)
	}

	if err := validateServerURL(serverURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REVIEWBOARD_URL: %v\n", err)
		os.Exit(1)
	}

	// Warn if using HTTP instead of HTTPS
	if strings.HasPrefix(strings.ToLower(serverURL), "http://") {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(os.Stderr)
	}

	// ReviewBoard issues UUID client ids; a different shape usually means a
	// copy/paste mistake.
	if _, err := uuid.Parse(clientID); err != nil {
		fmt.Fprintf(
			os.Stderr,
			"⚠️  Warning: client ID doesn't appear to be a valid UUID: %s\n",
			clientID,
		)
		fmt.Fprintln(os.Stderr)
	}
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	initConfig()

	if isTTY() {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner()
		runErr := run(d)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			os.Exit(1)
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		if err := run(d); err != nil {
			os.Exit(1)
		}
	}
}

func run(d tui.Displayer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow, err := oauth.NewFlow(oauth.FlowConfig{
		ServerURL:    serverURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CallbackPort: callbackPort,
		WaitTimeout:  waitTimeout,
	})
	if err != nil {
		d.Fatal(err)
		return err
	}

	record, err := flow.Run(ctx, d)
	if err != nil {
		d.Fatal(err)
		return err
	}

	if err := oauth.SaveCredentials(credentialsFile, record); err != nil {
		// A record we cannot persist is useless to the server; treat as fatal.
		d.TokenSaveFailed(err)
		d.Fatal(err)
		return err
	}
	d.TokenSaved(credentialsFile)

	tokenPreview := record.AccessToken
	if len(tokenPreview) > 50 {
		tokenPreview = tokenPreview[:50]
	}
	d.Done(tokenPreview, record.TokenType, time.Until(record.Expiry()).Round(time.Second))

	return nil
}
