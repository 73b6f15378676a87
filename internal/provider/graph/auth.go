package graph

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenExpiryBuffer is the time before actual expiry when we consider a token expired.
// This prevents using a token that is about to expire during a request.
const tokenExpiryBuffer = 5 * time.Minute

const graphScope = "https://graph.microsoft.com/.default"

// tokenCache hands out client-credentials access tokens, reusing one until
// it is within tokenExpiryBuffer of expiring.
type tokenCache struct {
	mu     sync.Mutex
	cfg    *clientcredentials.Config
	ctx    context.Context
	source oauth2.TokenSource
}

// newTokenCache creates a new token cache for the given OAuth2 client credentials.
func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	tc := &tokenCache{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		ctx: context.WithValue(context.Background(), oauth2.HTTPClient, httpClient),
	}
	tc.reset()
	return tc
}

func (tc *tokenCache) reset() {
	tc.source = oauth2.ReuseTokenSourceWithExpiry(nil, tc.cfg.TokenSource(tc.ctx), tokenExpiryBuffer)
}

// Token returns a valid access token, refreshing it if necessary.
// This method is safe for concurrent use.
func (tc *tokenCache) Token() (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tok, err := tc.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}
	return tok.AccessToken, nil
}

// ForceRefresh discards the current token and acquires a new one.
// This is used when a 401 response indicates the token is invalid.
func (tc *tokenCache) ForceRefresh() (string, error) {
	tc.mu.Lock()
	tc.reset()
	tc.mu.Unlock()

	return tc.Token()
}
