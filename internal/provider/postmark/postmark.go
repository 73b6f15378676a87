// Package postmark implements a Provider that sends emails through the
// Postmark transactional API.
package postmark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
)

// Config holds the configuration for creating a Postmark Provider.
type Config struct {
	ServerToken string
	// MessageStream selects the Postmark stream. Empty means the server's
	// default transactional stream.
	MessageStream string
}

// Provider sends messages via the Postmark email endpoint.
type Provider struct {
	client *postmark.Client
	stream string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider for the given server token. The account token is
// only needed for account-level endpoints and is left empty.
func New(cfg Config) *Provider {
	return &Provider{
		client: postmark.NewClient(cfg.ServerToken, ""),
		stream: cfg.MessageStream,
	}
}

// newWithOverrides points the client at a different API base URL, used for
// testing.
func newWithOverrides(serverToken, baseURL string) *Provider {
	p := New(Config{ServerToken: serverToken})
	p.client.BaseURL = baseURL
	return p
}

// Send submits the message and returns the Postmark message id.
func (p *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	resp, err := p.client.SendEmail(ctx, buildEmail(msg, p.stream))
	if err != nil {
		return "", fmt.Errorf("%w: Postmark API error: %w", provider.ErrTransportFailure, err)
	}
	if resp.ErrorCode != 0 {
		return "", errors.Join(
			provider.ErrTransportFailure,
			fmt.Errorf("Postmark error %d: %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}

func buildEmail(msg *message.Message, stream string) postmark.Email {
	text, html := msg.Body()

	email := postmark.Email{
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		HTMLBody:      html,
		TextBody:      text,
		MessageStream: stream,
	}

	for _, part := range msg.Leaves() {
		if part.Disposition == "" {
			continue
		}
		a := postmark.Attachment{
			Name:        part.Filename,
			Content:     base64.StdEncoding.EncodeToString(part.Content),
			ContentType: part.ContentType,
		}
		if part.Disposition == "inline" {
			a.ContentID = "cid:" + part.ContentID
		}
		email.Attachments = append(email.Attachments, a)
	}

	return email
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "postmark"
}
