// Package gmail implements a Provider that sends emails through the Gmail
// API users.messages.send endpoint with an installed-app OAuth2 client.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
)

// Config holds the configuration for creating a Gmail Provider.
type Config struct {
	// CredentialsFile is the OAuth2 client secrets JSON downloaded from the
	// Google Cloud console.
	CredentialsFile string
	// TokenFile caches the user's token between runs.
	TokenFile string
	// UserID is the mailbox to send from; "me" is the authorized user.
	UserID string
	// Prompt receives the consent URL when no cached token exists.
	// Defaults to os.Stderr.
	Prompt io.Writer
}

// Provider sends serialized messages via the Gmail API.
type Provider struct {
	svc    *gmailapi.Service
	userID string
}

var _ provider.Provider = (*Provider)(nil)

// New loads the client secrets and the cached token, running the browser
// consent flow once when there is no cached token, and creates a Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	secrets, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(secrets, gmailapi.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gmail credentials: %w", err)
	}

	store := tokenFile(cfg.TokenFile)
	tok, err := store.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		prompt := cfg.Prompt
		if prompt == nil {
			prompt = os.Stderr
		}
		tok, err = authorize(ctx, oauthCfg, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to authorize Gmail access: %w", err)
		}
		if err := store.Save(tok); err != nil {
			return nil, err
		}
		slog.Info("saved Gmail token", "path", cfg.TokenFile)
	case err != nil:
		return nil, err
	}

	source := newPersistingSource(oauthCfg.TokenSource(ctx, tok), tok, store)

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return NewWithService(svc, cfg.UserID), nil
}

// NewWithService creates a Provider around an existing service, used for
// testing.
func NewWithService(svc *gmailapi.Service, userID string) *Provider {
	if userID == "" {
		userID = "me"
	}
	return &Provider{svc: svc, userID: userID}
}

// Send uploads the message as a base64url raw field and returns the Gmail
// message id.
func (p *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	sent, err := p.svc.Users.Messages.
		Send(p.userID, &gmailapi.Message{Raw: msg.Raw()}).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: Gmail API error (HTTP %d): %s: %w",
				provider.ErrTransportFailure, apiErr.Code, apiErr.Message, err)
		}
		return "", fmt.Errorf("%w: Gmail API request failed: %w", provider.ErrTransportFailure, err)
	}

	return sent.Id, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gmail"
}
