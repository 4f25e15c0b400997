package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func writeCredentials(t *testing.T, dir, tokenURL string) {
	t.Helper()
	creds := fmt.Sprintf(`{"installed":{"client_id":"client","client_secret":"secret",`+
		`"auth_uri":"https://accounts.example.test/auth","token_uri":%q,`+
		`"redirect_uris":["http://localhost"]}}`, tokenURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, CredentialsFile), []byte(creds), 0o600))
}

func TestOAuthConfigScopes(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, "https://oauth.example.test/token")

	tests := []struct {
		scope Scope
		want  []string
	}{
		{ScopeReadonly, []string{gmail.GmailReadonlyScope}},
		{ScopeModify, []string{gmail.GmailModifyScope}},
		{ScopeLabels, []string{gmail.GmailModifyScope, gmail.GmailLabelsScope}},
	}
	for _, tt := range tests {
		cfg, err := OAuthConfig(dir, tt.scope)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cfg.Scopes, "scope %d", tt.scope)
		assert.Equal(t, "client", cfg.ClientID)
	}

	_, err := OAuthConfig(dir, Scope(42))
	assert.ErrorContains(t, err, "unknown scope 42")
}

func TestOAuthConfigMissingCredentials(t *testing.T) {
	_, err := OAuthConfig(t.TempDir(), ScopeReadonly)
	assert.ErrorContains(t, err, CredentialsFile)
}

func TestNewGmailClientNoToken(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, "https://oauth.example.test/token")

	_, err := NewGmailClient(context.Background(), dir, ScopeModify)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestNewGmailClientUsesStoredToken(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, "https://oauth.example.test/token")
	require.NoError(t, writeToken(filepath.Join(dir, TokenFile), &oauth2.Token{
		AccessToken: "stored-access",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"labels":[{"id":"Label_1","name":"Receipts"}]}`)
	}))
	t.Cleanup(srv.Close)

	client, err := newGmailClient(context.Background(), dir, ScopeModify, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	byName, _, err := client.ListLabels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, byName, "Receipts")
	assert.Equal(t, "Bearer stored-access", <-auth)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuthorize(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	dir := t.TempDir()
	writeCredentials(t, dir, tokenSrv.URL)

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Authorize(context.Background(), dir, out) }()

	var consent *url.URL
	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if strings.HasPrefix(line, "https://accounts.example.test/auth") {
				u, err := url.Parse(line)
				if err == nil {
					consent = u
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	q := consent.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Contains(t, q.Get("scope"), gmail.GmailLabelsScope)
	assert.Contains(t, q.Get("scope"), gmail.GmailModifyScope)
	redirect := q.Get("redirect_uri")
	require.True(t, strings.HasPrefix(redirect, "http://127.0.0.1:"), redirect)

	resp, err := http.Get(redirect + "?state=wrong&code=the-code")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(redirect + "?state=" + url.QueryEscape(q.Get("state")) + "&code=the-code")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Authorize did not return")
	}

	data, err := os.ReadFile(filepath.Join(dir, TokenFile))
	require.NoError(t, err)
	var tok oauth2.Token
	require.NoError(t, json.Unmarshal(data, &tok))
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Contains(t, out.String(), "token saved to")
}

func TestAuthorizeDenied(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, "https://oauth.example.test/token")

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Authorize(context.Background(), dir, out) }()

	var consent *url.URL
	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if u, err := url.Parse(line); err == nil && u.Host == "accounts.example.test" {
				consent = u
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	q := consent.Query()
	resp, err := http.Get(q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&error=access_denied")
	require.NoError(t, err)
	_ = resp.Body.Close()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "access_denied")
	case <-time.After(5 * time.Second):
		t.Fatal("Authorize did not return")
	}
	_, err = os.Stat(filepath.Join(dir, TokenFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
