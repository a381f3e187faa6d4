// Package client builds OAuth2 HTTP clients for the Google-backed plugins
// (the Gmail reader and the Sheets writer).
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Defaults for Config.
const (
	DefaultTokenFile    = "data/token.json"
	DefaultCallbackPort = 8085
	callbackPath        = "/callback"
	authTimeout         = 5 * time.Minute
)

// Config selects the credential files and scopes.
type Config struct {
	// SecretFile is the OAuth client secret downloaded from the Google console.
	SecretFile string
	// TokenFile caches the user's token. Defaults to DefaultTokenFile.
	TokenFile string
	// CallbackPort is the local port receiving the OAuth redirect.
	CallbackPort int
	// Scopes requested. With no scopes no client is needed.
	Scopes []string
	// Interactive allows starting a browser flow when no token is cached.
	Interactive bool
}

func (c *Config) setDefaults() {
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
}

// ErrNoToken is returned when no token is cached and the flow may not be started.
var ErrNoToken = errors.New("no cached oauth token; run `smsexpensor setup`")

// New returns an authorized client. It returns nil and no error when cfg.Scopes is
// empty, because none of the selected plugins talks to Google.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Client, error) {
	if len(cfg.Scopes) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	oauthCfg, err := oauthConfig(cfg)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		if !cfg.Interactive {
			return nil, ErrNoToken
		}
		logger.Info("no cached token, starting browser authorization")
		tok, err = authorize(ctx, oauthCfg, cfg.CallbackPort, logger)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			logger.Error("failed to save token", "path", cfg.TokenFile, "error", err)
		}
	}
	return oauthCfg.Client(ctx, tok), nil
}

// Authorize always runs the browser flow and replaces the cached token.
func Authorize(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	oauthCfg, err := oauthConfig(cfg)
	if err != nil {
		return err
	}
	tok, err := authorize(ctx, oauthCfg, cfg.CallbackPort, logger)
	if err != nil {
		return err
	}
	return SaveToken(cfg.TokenFile, tok)
}

func oauthConfig(cfg Config) (*oauth2.Config, error) {
	b, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	oauthCfg.RedirectURL = fmt.Sprintf("http://localhost:%d%s", cfg.CallbackPort, callbackPath)
	return oauthCfg, nil
}

func authorize(ctx context.Context, cfg *oauth2.Config, port int, logger *slog.Logger) (*oauth2.Token, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.Handle(callbackPath, CallbackHandler(state, codeChan, errChan))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errChan, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("\nOpening browser for Google authorization...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)
	if err := openBrowser(ctx, authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	select {
	case code := <-codeChan:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Println("Authorization successful!")
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for oauth callback: %w", ctx.Err())
	}
}

// CallbackHandler receives the OAuth redirect, checks state and forwards the code.
func CallbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			report(errChan, errors.New("invalid state parameter"))
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			report(errChan, fmt.Errorf("%s: %s", errMsg, q.Get("error_description")))
			http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			report(errChan, errors.New("no authorization code received"))
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>smsexpensor</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Authorization complete</h1>
<p>You can close this window and return to the terminal.</p>
</body></html>`)

		select {
		case codeChan <- code:
		default:
		}
	})
}

func report(errChan chan<- error, err error) {
	select {
	case errChan <- err:
	default:
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// LoadToken reads a cached token.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
