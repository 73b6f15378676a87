// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"
	"errors"

	"github.com/shineum/mailshot/internal/message"
)

// ErrTransportFailure indicates a backend rejected or failed to deliver one
// message. It concerns a single recipient; the run goes on.
var ErrTransportFailure = errors.New("transport failure")

// Provider is the interface that email delivery backends must implement.
// Each provider hands an already built MIME message to the target service
// (Gmail API, Microsoft Graph, SES, an SMTP relay, Resend, or stdout).
type Provider interface {
	// Send delivers one message and returns the identifier the service
	// assigned to it, or "" when the service does not report one.
	// Failures wrap ErrTransportFailure. Send makes a single attempt.
	Send(ctx context.Context, msg *message.Message) (string, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
