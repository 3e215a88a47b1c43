package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"
)

const (
	// ClientSecretsFile is the default name of the downloaded Google API credentials file,
	// resolved relative to the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile is where the OAuth token (access + refresh) is stored.
	TokenFile = "token.json"

	// LocalhostAuthPort is the port the local callback listener uses when the redirect URL
	// does not name one.
	LocalhostAuthPort = "3000"

	// CallbackPath is the redirect path registered with Google.
	CallbackPath = "/oauth2callback"

	loginTimeout = 5 * time.Minute
)

// Scopes requested from Google. Tasks are only read.
var Scopes = []string{tasks.TasksReadonlyScope}

// Options describe where the OAuth client configuration comes from. When ClientID is set the
// credentials file is not read.
type Options struct {
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
}

// GetConfig creates an oauth2.Config from the options and scopes.
func GetConfig(opts Options, scopes []string) (*oauth2.Config, error) {
	var config *oauth2.Config
	if opts.ClientID != "" {
		config = &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}
	} else {
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read client secret file %s: %w", opts.CredentialsFile, err)
		}
		config, err = google.ConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
		}
		if opts.RedirectURL != "" {
			config.RedirectURL = opts.RedirectURL
		}
	}

	config.RedirectURL = normalizeRedirectURL(config.RedirectURL)
	return config, nil
}

// normalizeRedirectURL makes sure a localhost redirect carries a port and the callback path,
// and replaces the deprecated out-of-band URI with a localhost callback.
func normalizeRedirectURL(redirect string) string {
	if redirect == "" || redirect == "urn:ietf:wg:oauth:2.0:oob" {
		return fmt.Sprintf("http://localhost:%s%s", LocalhostAuthPort, CallbackPath)
	}

	parsedURL, err := url.Parse(redirect)
	if err != nil {
		log.Warn("could not parse redirect URL, using it as is", "url", redirect, "err", err)
		return redirect
	}
	if parsedURL.Hostname() != "localhost" && parsedURL.Hostname() != "127.0.0.1" {
		return redirect
	}
	if parsedURL.Port() == "" {
		parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
	}
	if parsedURL.Path == "" || parsedURL.Path == "/" {
		parsedURL.Path = CallbackPath
	}
	return parsedURL.String()
}

// LoginLoopback runs the authorization code flow through a local web server listening on
// the redirect URL's port. The obtained token is saved to the store.
func (a *Authenticator) LoginLoopback(ctx context.Context) (*oauth2.Token, error) {
	redirect, err := url.Parse(a.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", a.config.RedirectURL, err)
	}
	port := redirect.Port()
	if port == "" {
		port = LocalhostAuthPort
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = CallbackPath
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	state := uuid.New().String()

	listener, err := net.Listen("tcp", net.JoinHostPort("", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", port, err)
	}
	defer listener.Close()

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
			default:
			}
			return
		}
		fmt.Fprintf(w, "Authentication successful! You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		log.Info("waiting for OAuth2 redirect", "url", a.config.RedirectURL)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	fmt.Printf("Please open the following URL in your browser to authorize tasknotion:\n%s\n", a.AuthCodeURL(state))

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return a.Exchange(exchangeCtx, code)
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(loginTimeout):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}
