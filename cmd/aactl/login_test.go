package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"aadash/internal/export/sheets"
)

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{name: "valid callback", query: "code=abc&state=s1", wantStatus: http.StatusOK, wantCode: "abc"},
		{name: "provider error", query: "error=access_denied&state=s1", wantStatus: http.StatusBadRequest},
		{name: "foreign state", query: "code=abc&state=other", wantStatus: http.StatusBadRequest},
		{name: "missing code", query: "state=s1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := make(chan string, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", codes).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			select {
			case code := <-codes:
				if code != tt.wantCode {
					t.Errorf("code = %q, want %q", code, tt.wantCode)
				}
			default:
				if tt.wantCode != "" {
					t.Errorf("no code delivered")
				}
			}
		})
	}
}

func TestSheetsLoginCommand(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "auth-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", fmt.Sprintf(
		`{"installed":{"client_id":"id","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.example.com/auth","token_uri":%q}}`,
		tokenSrv.URL+"/token"))

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	pr, pw := io.Pipe()
	cmd := newRootCmd(mockOpener(t, ""))
	cmd.SetOut(pw)
	cmd.SetArgs([]string{"sheets-login", "--port", "0", "--token-file", tokenPath, "--wait", "30s"})

	errc := make(chan error, 1)
	go func() {
		errc <- cmd.Execute()
		pw.Close()
	}()

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var authURL string
	for line := range lines {
		if strings.HasPrefix(line, "https://accounts.example.com/auth") {
			authURL = line
			break
		}
	}
	if authURL == "" {
		t.Fatalf("no authorization URL printed: %v", <-errc)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || !strings.Contains(q.Get("scope"), "spreadsheets") {
		t.Errorf("unexpected auth URL %s", authURL)
	}

	resp, err := http.Get(q.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(q.Get("state")))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}

	if err := <-errc; err != nil {
		t.Fatalf("sheets-login: %v", err)
	}
	tok, err := sheets.LoadToken(tokenPath)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok.AccessToken != "access" || tok.RefreshToken != "refresh" {
		t.Errorf("unexpected token %+v", tok)
	}
}
