package sheets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const installedClient = `{"installed":{"client_id":"client-123.apps.googleusercontent.com","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google", "token.json")
	expiry := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: expiry}

	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %v, want 0600", perm)
	}

	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" || !loaded.Expiry.Equal(expiry) {
		t.Errorf("unexpected token %+v", loaded)
	}
}

func TestLoadTokenRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadToken(path); err == nil {
		t.Fatal("expected an error for a token file without tokens")
	}
}

func TestOAuthConfig(t *testing.T) {
	oc, err := OAuthConfig(Config{OAuthClientJSON: installedClient}, "http://localhost:8085/callback")
	if err != nil {
		t.Fatalf("OAuthConfig: %v", err)
	}
	if oc.ClientID != "client-123.apps.googleusercontent.com" || oc.RedirectURL != "http://localhost:8085/callback" {
		t.Errorf("unexpected config %+v", oc)
	}
	if len(oc.Scopes) != 1 || !strings.Contains(oc.Scopes[0], "spreadsheets") {
		t.Errorf("scopes = %v", oc.Scopes)
	}

	if _, err := OAuthConfig(Config{}, ""); err == nil {
		t.Error("expected an error without client credentials")
	}
}

func TestNewWithOAuthToken(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	if err := SaveToken(tokenPath, &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	clientPath := filepath.Join(dir, "client.json")
	if err := os.WriteFile(clientPath, []byte(installedClient), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := Config{SpreadsheetID: "sheet-1", OAuthClientFile: clientPath, OAuthTokenFile: tokenPath}
	if !cfg.UsesOAuth() {
		t.Fatal("config with a token file should use OAuth")
	}
	if _, err := New(context.Background(), cfg, nil); err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg.OAuthTokenFile = filepath.Join(dir, "missing.json")
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for a missing token file")
	}
}
