package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/model"
	"golang.org/x/oauth2"
)

// Authenticator owns the OAuth flow and hands out refreshed tokens from a TokenStore.
// It implements oauth2.TokenSource, so a client built from it picks up a token obtained
// after startup (for example through the web callback) without being rebuilt.
type Authenticator struct {
	config *oauth2.Config
	store  TokenStore

	mu      sync.Mutex
	source  oauth2.TokenSource
	current *oauth2.Token
}

func NewAuthenticator(config *oauth2.Config, store TokenStore) *Authenticator {
	return &Authenticator{config: config, store: store}
}

// AuthCodeURL returns the consent page URL. Offline access is requested so Google returns
// a refresh token.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
	}
	if err := a.store.Save(tok); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.current = tok
	a.source = a.config.TokenSource(context.Background(), tok)
	a.mu.Unlock()
	return tok, nil
}

// Token returns a valid token, refreshing it if needed. A refreshed token is written back to
// the store. Failures wrap model.ErrUnauthorized unless the refresh failed in transit.
func (a *Authenticator) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.source == nil {
		tok, err := a.store.Load()
		if err != nil {
			return nil, fmt.Errorf("%w: %v (run `tasknotion auth` or open /auth/google)", model.ErrUnauthorized, err)
		}
		a.current = tok
		a.source = a.config.TokenSource(context.Background(), tok)
	}

	tok, err := a.source.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: token refresh rejected: %v", model.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: token refresh failed: %v", model.ErrTransient, err)
	}

	if tok.AccessToken != a.current.AccessToken || tok.RefreshToken != a.current.RefreshToken {
		log.Debug("token was refreshed, saving")
		if err := a.store.Save(tok); err != nil {
			log.Warn("could not save refreshed token", "err", err)
		}
		a.current = tok
	}
	return tok, nil
}

// Authorized reports whether a token is available, without contacting Google.
func (a *Authenticator) Authorized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return true
	}
	_, err := a.store.Load()
	return err == nil
}

// Client returns an HTTP client that authorizes every request with Token.
func (a *Authenticator) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, a)
}
