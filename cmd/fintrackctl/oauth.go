package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	gsheet "fintrack/internal/sheets/google"
)

const oauthTimeout = 5 * time.Minute

func oauthCmd(a *app) *cobra.Command {
	var (
		port    string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Authorize the Google Sheets mirror and save its token",
		Long: `Runs the OAuth consent flow for the ledger mirror. The client credentials come from
GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE; the OAuth client must list
http://localhost:<port>/callback as an authorized redirect URI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := gsheet.LoadCredential(a.cfg.GoogleOAuthClientJSON, a.cfg.GoogleOAuthClientFile)
			if err != nil {
				return fmt.Errorf("client credentials (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE): %w", err)
			}
			conf, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
			if err != nil {
				return fmt.Errorf("oauth config: %w", err)
			}
			conf.RedirectURL = "http://localhost:" + port + "/callback"

			if outFile == "" {
				outFile = a.cfg.GoogleOAuthTokenFile
			}
			if outFile == "" {
				outFile = "token.json"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), oauthTimeout)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
			code, err := waitForCode(ctx, port)
			if err != nil {
				return err
			}

			tok, err := conf.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			if err := saveToken(outFile, tok); err != nil {
				return err
			}
			a.logger.Info("OAuth token saved", "file", outFile)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("OAUTH_REDIRECT_PORT", "8085"), "local port receiving the OAuth redirect")
	cmd.Flags().StringVar(&outFile, "out", "", "token file (default: $GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	return cmd
}

// waitForCode serves /callback on port until Google redirects back with an
// authorization code or ctx ends.
func waitForCode(ctx context.Context, port string) (string, error) {
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return "", fmt.Errorf("listen for redirect: %w", err)
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if msg := r.URL.Query().Get("error"); msg != "" {
			http.Error(w, "OAuth error: "+msg, http.StatusBadRequest)
			select {
			case results <- result{err: fmt.Errorf("authorization denied: %s", msg)}:
			default:
			}
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case results <- result{code: r.URL.Query().Get("code")}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		if res.err == nil && res.code == "" {
			return "", errors.New("redirect carried no authorization code")
		}
		return res.code, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.New("authorization timed out")
		}
		return "", ctx.Err()
	}
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
