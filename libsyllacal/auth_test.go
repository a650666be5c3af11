package libsyllacal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeStore is an in-memory CredentialStore for tests.
type fakeStore struct {
	token   *oauth2.Token
	saves   int
	deletes int
}

func (s *fakeStore) Load() (*oauth2.Token, error) {
	return s.token, nil
}

func (s *fakeStore) Save(token *oauth2.Token) error {
	s.token = token
	s.saves++
	return nil
}

func (s *fakeStore) Delete() error {
	s.token = nil
	s.deletes++
	return nil
}

func newTestAuthenticator(store CredentialStore) *Authenticator {
	return NewAuthenticator(AuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8484/callback",
		Scopes:       DefaultScopes,
	}, store)
}

func TestTokenNotAuthenticated(t *testing.T) {
	auth := newTestAuthenticator(&fakeStore{})

	_, err := auth.Token(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestTokenMissingRefreshToken(t *testing.T) {
	store := &fakeStore{
		token: &oauth2.Token{
			AccessToken: "access",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
	auth := newTestAuthenticator(store)

	_, err := auth.Token(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if !errors.Is(err, ErrMissingRefreshToken) {
		t.Errorf("expected ErrMissingRefreshToken, got %v", err)
	}

	// The unusable credential must be cleared so login starts fresh.
	if store.deletes != 1 {
		t.Errorf("expected credential cleared, got %d deletes", store.deletes)
	}
}

func TestTokenValid(t *testing.T) {
	stored := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	store := &fakeStore{token: stored}
	auth := newTestAuthenticator(store)

	token, err := auth.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if token.AccessToken != "access" {
		t.Errorf("expected stored access token, got %q", token.AccessToken)
	}
	// No refresh happened, so nothing was rewritten.
	if store.saves != 0 {
		t.Errorf("expected no saves for valid token, got %d", store.saves)
	}
}

func TestTokenRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "refresh" {
			t.Errorf("expected stored refresh token, got %q", r.Form.Get("refresh_token"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh"}`))
	}))
	defer server.Close()

	store := &fakeStore{
		token: &oauth2.Token{
			AccessToken:  "stale-access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(-time.Hour),
		},
	}
	auth := newTestAuthenticator(store)
	auth.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token"}

	token, err := auth.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if token.AccessToken != "new-access" {
		t.Errorf("expected refreshed access token, got %q", token.AccessToken)
	}
	if store.saves != 1 {
		t.Errorf("expected refreshed token saved, got %d saves", store.saves)
	}
	if store.token.AccessToken != "new-access" {
		t.Errorf("expected store updated, got %q", store.token.AccessToken)
	}
}

func TestTokenRefreshFailureClearsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	}))
	defer server.Close()

	store := &fakeStore{
		token: &oauth2.Token{
			AccessToken:  "stale-access",
			RefreshToken: "revoked",
			Expiry:       time.Now().Add(-time.Hour),
		},
	}
	auth := newTestAuthenticator(store)
	auth.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token"}

	_, err := auth.Token(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if store.deletes != 1 {
		t.Errorf("expected credential cleared after refresh failure, got %d deletes", store.deletes)
	}
}

func TestExchangeCodeCarriesOverRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Repeat consent: the provider returns no refresh token.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	store := &fakeStore{
		token: &oauth2.Token{
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			Expiry:       time.Now().Add(-time.Hour),
		},
	}
	auth := newTestAuthenticator(store)
	auth.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token"}

	token, err := auth.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	if token.RefreshToken != "old-refresh" {
		t.Errorf("expected previous refresh token carried over, got %q", token.RefreshToken)
	}
	if store.token.RefreshToken != "old-refresh" {
		t.Errorf("expected carried-over refresh token persisted, got %q", store.token.RefreshToken)
	}
}

func TestExchangeCodeNoRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	auth := newTestAuthenticator(&fakeStore{})
	auth.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token"}

	_, err := auth.ExchangeCode(context.Background(), "auth-code")
	if !errors.Is(err, ErrMissingRefreshToken) {
		t.Errorf("expected ErrMissingRefreshToken, got %v", err)
	}
}

func TestAuthURL(t *testing.T) {
	auth := newTestAuthenticator(&fakeStore{})

	url := auth.AuthURL("state123")
	for _, want := range []string{"state=state123", "access_type=offline", "prompt=consent", "client_id=client-id"} {
		if !strings.Contains(url, want) {
			t.Errorf("expected %q in auth URL, got %s", want, url)
		}
	}
}

func TestLogout(t *testing.T) {
	store := &fakeStore{token: &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}}
	auth := newTestAuthenticator(store)

	if err := auth.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if store.token != nil {
		t.Error("expected stored credential removed")
	}
}

func TestFileStore(t *testing.T) {
	tmpDir := t.TempDir()
	store := &FileStore{tokenPath: filepath.Join(tmpDir, "token.json")}

	// No credential yet.
	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != nil {
		t.Errorf("expected nil token, got %+v", token)
	}

	saved := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(store.tokenPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("loaded token mismatch: %+v", loaded)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(store.tokenPath); !os.IsNotExist(err) {
		t.Error("expected token file removed")
	}

	// Deleting again is not an error.
	if err := store.Delete(); err != nil {
		t.Errorf("Delete of missing file failed: %v", err)
	}
}
