package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
)

// Config holds the configuration for creating a Graph Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// Provider sends MIME messages via the Microsoft Graph sendMail endpoint
// using OAuth2 client credentials authentication.
type Provider struct {
	graphURL   string
	httpClient *http.Client
	token      *tokenCache
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Provider with the given configuration.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)

	client := &http.Client{Timeout: 30 * time.Second}

	return newWithOverrides(cfg, graphURL, tokenURL, client)
}

// newWithOverrides creates a Provider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Provider {
	return &Provider{
		graphURL:   graphURL,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
	}
}

// Send posts the base64 MIME message to sendMail. Graph returns no
// message identifier, so the returned id is always empty.
//
// A 401 response discards the cached token so the next message gets a
// fresh one; the failed message is not resent.
func (p *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	token, err := p.token.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", provider.ErrTransportFailure, err)
	}

	body := base64.StdEncoding.EncodeToString(msg.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.graphURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", provider.ErrTransportFailure, err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: HTTP request failed: %w", provider.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return "", nil
	}

	sendErr := readError(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		slog.Info("discarding Graph API token after 401")
		if _, refreshErr := p.token.ForceRefresh(); refreshErr != nil {
			slog.Warn("token refresh failed", "error", refreshErr)
		}
	}

	return "", fmt.Errorf("%w: %w", provider.ErrTransportFailure, sendErr)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "msgraph"
}

// sendError is a non-success response from the Graph API.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// readError builds a sendError from the response, preferring the structured
// Graph error body when there is one.
func readError(resp *http.Response) *sendError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return &sendError{
			statusCode: resp.StatusCode,
			code:       graphErrResp.Error.Code,
			message:    graphErrResp.Error.Message,
		}
	}

	return &sendError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(body))}
}
