// internal/runtime/auth.go
package runtime

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/mailrules/internal/gmail"
)

type Scope int

const (
	ScopeReadonly Scope = iota
	ScopeModify
	// ScopeLabels adds label creation on top of message modification.
	ScopeLabels
)

// Files looked up in the credentials directory. credentials.json is the
// OAuth client shared with gmailctl; the token is kept apart from gmailctl's
// own token.json because it is granted different scopes.
const (
	CredentialsFile = "credentials.json"
	TokenFile       = "mailrules-token.json"
)

// ErrNoToken is returned when the credentials directory holds no token yet.
var ErrNoToken = errors.New("no stored token; run 'mailrules auth'")

const callbackShutdownTimeout = 5 * time.Second

// Scopes maps scope to Gmail OAuth scopes.
func Scopes(scope Scope) ([]string, error) {
	switch scope {
	case ScopeReadonly:
		return []string{gmail.GmailReadonlyScope}, nil
	case ScopeModify:
		return []string{gmail.GmailModifyScope}, nil
	case ScopeLabels:
		return []string{gmail.GmailModifyScope, gmail.GmailLabelsScope}, nil
	default:
		return nil, fmt.Errorf("unknown scope %d", scope)
	}
}

// OAuthConfig reads the OAuth client from cfgDir and requests scope.
func OAuthConfig(cfgDir string, scope Scope) (*oauth2.Config, error) {
	scopes, err := Scopes(scope)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(cfgDir, CredentialsFile)
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read oauth client %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client %s: %w", path, err)
	}
	return cfg, nil
}

// NewGmailClient authenticates with the OAuth client and stored token in
// cfgDir and returns a client limited to scope.
func NewGmailClient(ctx context.Context, cfgDir string, scope Scope) (gc.Client, error) {
	return newGmailClient(ctx, cfgDir, scope)
}

func newGmailClient(ctx context.Context, cfgDir string, scope Scope, opts ...option.ClientOption) (gc.Client, error) {
	cfg, err := OAuthConfig(cfgDir, scope)
	if err != nil {
		return nil, err
	}
	tok, err := readToken(filepath.Join(cfgDir, TokenFile))
	if err != nil {
		return nil, err
	}
	opts = append([]option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx, tok))}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

// Authorize runs the installed-app consent flow: it prints the consent URL
// to out, receives the code on a loopback listener and stores the token in
// cfgDir. The token covers every scope the commands use.
func Authorize(ctx context.Context, cfgDir string, out io.Writer) error {
	cfg, err := OAuthConfig(cfgDir, ScopeLabels)
	if err != nil {
		return err
	}
	state, err := stateToken()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth callback: %w", err)
	}
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"

	codes := make(chan string, 1)
	denied := make(chan error, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, codes, denied),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callbackShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in a browser to authorize mailrules:\n\n%s\n\n", url)

	var code string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-denied:
		return err
	case code = <-codes:
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	path := filepath.Join(cfgDir, TokenFile)
	if err := writeToken(path, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "token saved to %s\n", path)
	return nil
}

func callbackHandler(state string, codes chan<- string, denied chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "authorization failed", http.StatusForbidden)
			select {
			case denied <- fmt.Errorf("authorization denied: %s", reason):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "mailrules is authorized; you can close this window.\n")
		select {
		case codes <- code:
		default:
		}
	})
}

func stateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (looked in %s)", ErrNoToken, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", path, err)
	}
	return nil
}
