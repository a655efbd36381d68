package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"aadash/internal/cli"
	"aadash/internal/config"
	"aadash/internal/export/sheets"
)

const defaultTokenFile = "token.json"

type loginOptions struct {
	port      string
	tokenFile string
	wait      time.Duration
}

// newSheetsLoginCmd authorizes the spreadsheet export with a Google user
// account and saves the refreshable token for GOOGLE_OAUTH_TOKEN_FILE.
func newSheetsLoginCmd() *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "sheets-login",
		Short: "Authorize the Google Sheets export with a user account",
		Long: "Starts a local callback server, prints the Google consent URL and saves the\n" +
			"token once the browser redirects back. The OAuth client must list\n" +
			"http://localhost:<port>/callback as an authorized redirect URI.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSheetsLogin(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.port, "port", "8085", "Port of the local OAuth callback server")
	cmd.Flags().StringVar(&opts.tokenFile, "token-file", "", "Where to save the token (default GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	cmd.Flags().DurationVar(&opts.wait, "wait", 5*time.Minute, "How long to wait for the browser")
	return cmd
}

func runSheetsLogin(cmd *cobra.Command, opts *loginOptions) error {
	// No Validate: the token file may not exist yet
	cfg := config.Load()
	tokenFile := opts.tokenFile
	if tokenFile == "" {
		tokenFile = cfg.GoogleOAuthTokenFile
	}
	if tokenFile == "" {
		tokenFile = defaultTokenFile
	}

	ln, err := net.Listen("tcp", "localhost:"+opts.port)
	if err != nil {
		return fmt.Errorf("start callback server: %w", err)
	}
	redirectURL := fmt.Sprintf("http://localhost:%d/callback", ln.Addr().(*net.TCPAddr).Port)

	oc, err := sheets.OAuthConfig(cli.SheetsConfig(cfg), redirectURL)
	if err != nil {
		ln.Close()
		return err
	}

	state := uuid.NewString()
	codes := make(chan string, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, codes),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL to authorize:\n%s\n", oc.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()

	select {
	case code := <-codes:
		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		if err := sheets.SaveToken(tokenFile, tok); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved token to %s\n", tokenFile)
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("authorization timed out")
		}
		return errors.New("interrupted")
	}
}

// callbackHandler receives the authorization code on the redirect URL.
// Requests with a foreign state are rejected.
func callbackHandler(state string, codes chan<- string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errStr := q.Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codes <- code:
		default:
		}
	})
	return mux
}
