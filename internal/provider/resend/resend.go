// Package resend implements a Provider that sends emails through the Resend
// API. Resend takes structured fields rather than raw MIME, so the message
// tree is flattened back into HTML, text and attachments.
package resend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
)

// Config holds the configuration for creating a Resend Provider.
type Config struct {
	APIKey string
}

// Provider sends messages via the Resend emails endpoint.
type Provider struct {
	client *resend.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider for the given API key.
func New(cfg Config) *Provider {
	return &Provider{client: resend.NewClient(cfg.APIKey)}
}

// newWithOverrides points the client at a different API base URL, used for
// testing.
func newWithOverrides(apiKey, baseURL string) (*Provider, error) {
	u, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	client := resend.NewClient(apiKey)
	client.BaseURL = u
	return &Provider{client: client}, nil
}

// Send submits the message and returns the Resend email id.
func (p *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	sent, err := p.client.Emails.SendWithContext(ctx, buildRequest(msg))
	if err != nil {
		return "", fmt.Errorf("%w: Resend API error: %w", provider.ErrTransportFailure, err)
	}
	return sent.Id, nil
}

func buildRequest(msg *message.Message) *resend.SendEmailRequest {
	text, html := msg.Body()

	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    html,
		Text:    text,
	}

	for _, part := range msg.Leaves() {
		if part.Disposition == "" {
			continue
		}
		a := &resend.Attachment{
			Filename:    part.Filename,
			Content:     part.Content,
			ContentType: part.ContentType,
		}
		if part.Disposition == "inline" {
			a.ContentId = part.ContentID
		}
		req.Attachments = append(req.Attachments, a)
	}

	return req
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "resend"
}
