package libsyllacal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	// ErrNotAuthenticated means no usable credential is stored.
	ErrNotAuthenticated = errors.New("not authenticated: please run 'syllacal login' first")

	// ErrMissingRefreshToken means the stored credential cannot be refreshed
	// and re-consent is required. Google omits the refresh token when consent
	// was granted previously without prompt=consent.
	ErrMissingRefreshToken = errors.New("stored credential has no refresh token: please run 'syllacal login' again")
)

// AuthConfig holds OAuth client configuration for the calendar provider.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// CredentialStore persists a single OAuth credential.
// Load returns (nil, nil) when no credential is stored.
type CredentialStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
	Delete() error
}

// FileStore keeps the credential in a JSON file under the user's config directory.
type FileStore struct {
	tokenPath string
}

// NewFileStore creates a file-backed credential store
func NewFileStore() (*FileStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".syllacal")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &FileStore{
		tokenPath: filepath.Join(configDir, "token.json"),
	}, nil
}

// Save writes the credential to disk
func (fs *FileStore) Save(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(fs.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	return nil
}

// Load reads the credential from disk
func (fs *FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(fs.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// Delete removes the stored credential
func (fs *FileStore) Delete() error {
	if err := os.Remove(fs.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Authenticator owns the OAuth authorization-code flow and the stored credential.
type Authenticator struct {
	config *oauth2.Config
	store  CredentialStore

	// Serializes refresh calls: Google may invalidate a refresh token that is
	// presented by two concurrent refresh requests.
	refreshMu sync.Mutex
}

// NewAuthenticator creates a new authenticator backed by the given store
func NewAuthenticator(cfg AuthConfig, store CredentialStore) *Authenticator {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint:     google.Endpoint,
	}

	return &Authenticator{
		config: oauth2Config,
		store:  store,
	}
}

// AuthURL returns the URL for user consent. Offline access and a forced
// consent screen ensure Google returns a refresh token.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for a credential and persists it.
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	if token.RefreshToken == "" {
		// Google sometimes omits the refresh token on repeat consent.
		// Carry over the previously stored one when we have it.
		if existing, err := a.store.Load(); err == nil && existing != nil && existing.RefreshToken != "" {
			token.RefreshToken = existing.RefreshToken
		}
	}

	if token.RefreshToken == "" {
		return nil, fmt.Errorf("token exchange succeeded but %w", ErrMissingRefreshToken)
	}

	if err := a.store.Save(token); err != nil {
		return nil, err
	}

	return token, nil
}

// Token retrieves the current credential, refreshing it if expiring.
// A stored credential without a refresh token is cleared immediately.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	token, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	if token == nil {
		return nil, ErrNotAuthenticated
	}

	if token.RefreshToken == "" {
		if err := a.store.Delete(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, ErrMissingRefreshToken)
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	tokenSource := a.config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		// Refresh failed (revoked or invalid grant): clear the credential so
		// the user is asked to consent again.
		if delErr := a.store.Delete(); delErr != nil {
			return nil, delErr
		}
		return nil, fmt.Errorf("%w: token refresh failed: %v", ErrNotAuthenticated, err)
	}

	// Save if the access token was refreshed
	if newToken.AccessToken != token.AccessToken {
		if err := a.store.Save(newToken); err != nil {
			return nil, err
		}
	}

	return newToken, nil
}

// AuthorizedClient returns an HTTP client carrying a valid access token,
// refreshing the stored credential first when needed.
func (a *Authenticator) AuthorizedClient(ctx context.Context) (*http.Client, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}

// Logout removes the stored credential
func (a *Authenticator) Logout() error {
	return a.store.Delete()
}

// IsAuthenticated reports whether a usable credential exists.
func (a *Authenticator) IsAuthenticated(ctx context.Context) bool {
	token, err := a.Token(ctx)
	if err != nil {
		return false
	}
	return token.Valid()
}
