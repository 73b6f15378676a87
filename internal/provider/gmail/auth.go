package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenFile stores an OAuth2 token as JSON at the given path.
type tokenFile string

// Load reads the cached token. A missing file returns an error matching
// fs.ErrNotExist.
func (f tokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", string(f), err)
	}
	return &tok, nil
}

// Save writes the token, readable by the owner only.
func (f tokenFile) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(string(f), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// persistingSource writes refreshed tokens back to the token file so the
// next run starts with a valid access token.
type persistingSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	last  string
	store tokenFile
}

func newPersistingSource(base oauth2.TokenSource, initial *oauth2.Token, store tokenFile) *persistingSource {
	return &persistingSource{base: base, last: initial.AccessToken, store: store}
}

// Token implements oauth2.TokenSource.
func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			slog.Warn("failed to persist refreshed Gmail token", "path", string(s.store), "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

type authResult struct {
	code string
	err  error
}

// authorize runs the installed-app consent flow: it serves a one-shot
// loopback redirect endpoint, writes the consent URL to prompt, waits for
// the browser to deliver the authorization code and exchanges it.
func authorize(ctx context.Context, cfg *oauth2.Config, prompt io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start loopback listener: %w", err)
	}

	flow := *cfg
	flow.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan authResult, 1)
	deliver := func(r authResult) {
		select {
		case results <- r:
		default:
		}
	}

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				http.Error(w, "invalid state", http.StatusBadRequest)
				return
			}
			if e := q.Get("error"); e != "" {
				http.Error(w, "authorization failed: "+e, http.StatusForbidden)
				deliver(authResult{err: fmt.Errorf("authorization denied: %s", e)})
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
			deliver(authResult{code: code})
		}),
	}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	fmt.Fprintf(prompt, "Open this URL in your browser to authorize Gmail access:\n\n%s\n\n", authURL)

	var res authResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := flow.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(errors.New("failed to generate state"), err)
	}
	return hex.EncodeToString(b), nil
}
