// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
)

// Config holds the configuration for creating a SES Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// Provider sends raw MIME messages via the AWS SES v2 API.
type Provider struct {
	sender string
	client SendEmailAPI
}

var _ provider.Provider = (*Provider)(nil)

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Provider with the given configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies. The SDK retryer is limited to one attempt.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Provider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *Provider {
	return &Provider{
		sender: sender,
		client: client,
	}
}

// Send delivers the message as raw MIME content and returns the SES
// message ID.
func (s *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	out, err := s.client.SendEmail(ctx, buildInput(s.sender, msg))
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: SES API error %s: %s: %w",
				provider.ErrTransportFailure, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return "", fmt.Errorf("%w: SES API request failed: %w", provider.ErrTransportFailure, err)
	}

	return aws.ToString(out.MessageId), nil
}

// Name returns the provider name.
func (s *Provider) Name() string {
	return "ses"
}

// buildInput creates a SendEmailInput carrying the serialized message.
// The envelope recipient is the message's single To address.
func buildInput(sender string, msg *message.Message) *sesv2.SendEmailInput {
	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: msg.Bytes(),
			},
		},
	}
	if sender != "" {
		input.FromEmailAddress = aws.String(sender)
	}
	return input
}
