// Package oauth provides the OAuth2 authorization flow and token
// lifecycle for the Zoho accounts server.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Scopes required for extraction: read access to messages, folders and
// account metadata.
var Scopes = []string{
	"ZohoMail.messages.READ",
	"ZohoMail.folders.READ",
	"ZohoMail.accounts.READ",
}

// expiryMargin is subtracted from the server-reported expiry before a
// token is stored, so a token is always refreshed before it can expire
// mid-request.
const expiryMargin = 5 * time.Minute

// AuthError indicates that no usable credential exists and a full
// authorization flow is required. It is fatal to an extraction run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication required: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Endpoint returns the OAuth2 endpoint for a Zoho accounts server such
// as https://accounts.zoho.in.
func Endpoint(accountsURL string) oauth2.Endpoint {
	accountsURL = strings.TrimRight(accountsURL, "/")
	return oauth2.Endpoint{
		AuthURL:  accountsURL + "/oauth/v2/auth",
		TokenURL: accountsURL + "/oauth/v2/token",
	}
}

// Manager owns the access/refresh token lifecycle: lazy load from the
// store, silent refresh when the recorded expiry has passed, and
// persistence after every acquisition.
type Manager struct {
	config *oauth2.Config
	store  *Store
	logger *slog.Logger

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

// NewManager creates a token manager for the given OAuth client.
func NewManager(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint, store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns an access token guaranteed valid at call time,
// refreshing and persisting as needed. It fails with *AuthError when
// no stored credential exists, no refresh token is available, or the
// refresh call is rejected.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	if m.token.Expiry.After(m.now()) {
		return m.token.AccessToken, nil
	}

	m.logger.Info("access token expired, refreshing")
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.AccessToken, nil
}

// ForceRefresh discards the current access token and refreshes
// regardless of the recorded expiry. The request executor calls this
// when the server rejects a token the expiry said was still good.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.AccessToken, nil
}

// HasCredential reports whether a stored credential can be loaded.
func (m *Manager) HasCredential() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked() == nil
}

// Exchange trades an authorization code for a credential and persists
// it.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return &AuthError{Err: fmt.Errorf("exchange authorization code: %w", err)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.adoptLocked(tok)
	m.logger.Info("credential acquired",
		"expires", m.token.Expiry.Format(time.RFC3339),
		"refresh_token", m.token.RefreshToken != "")
	return nil
}

// AuthURL returns the browser authorization URL for the given CSRF
// state. Offline access and forced consent guarantee a refresh token.
func (m *Manager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// loadLocked populates the in-memory token from the store on first use.
func (m *Manager) loadLocked() error {
	if m.token != nil {
		return nil
	}
	tok, err := m.store.Load()
	if err != nil {
		return &AuthError{Err: fmt.Errorf("load credential: %w", err)}
	}
	if tok == nil {
		return &AuthError{Err: errors.New("no stored credential")}
	}
	m.token = tok
	return nil
}

// refreshLocked runs the refresh grant for the current token.
func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.token.RefreshToken == "" {
		return &AuthError{Err: errors.New("no refresh token available")}
	}

	// A TokenSource only hits the refresh grant for an invalid token,
	// so hand it a copy whose expiry is unambiguously in the past.
	stale := *m.token
	stale.Expiry = m.now().Add(-time.Hour)

	fresh, err := m.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return &AuthError{Err: fmt.Errorf("refresh access token: %w", err)}
	}

	m.adoptLocked(fresh)
	m.logger.Info("access token refreshed", "expires", m.token.Expiry.Format(time.RFC3339))
	return nil
}

// adoptLocked applies the expiry margin, keeps the previous refresh
// token when the server did not issue a new one, and persists.
func (m *Manager) adoptLocked(tok *oauth2.Token) {
	adopted := *tok
	if !adopted.Expiry.IsZero() {
		adopted.Expiry = adopted.Expiry.Add(-expiryMargin)
	}
	if adopted.RefreshToken == "" && m.token != nil {
		adopted.RefreshToken = m.token.RefreshToken
	}
	m.token = &adopted

	if err := m.store.Save(m.token); err != nil {
		m.logger.Warn("failed to persist credential", "error", err)
	}
}
