// Package smtp implements a Provider that relays messages through an SMTP
// server, with STARTTLS, implicit TLS or a plain connection.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
	mytls "github.com/shineum/mailshot/internal/tls"
)

// TLS modes.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
	TLSNone     = "none"
)

const (
	dialTimeout = 30 * time.Second
	// defaultTimeout bounds one whole session, from greeting to QUIT.
	defaultTimeout = 2 * time.Minute
)

var tracer = otel.Tracer("github.com/shineum/mailshot/internal/provider/smtp")

// Config holds the configuration for creating an SMTP Provider.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of TLSStartTLS (default), TLSImplicit or TLSNone.
	TLS string
	// CAFile adds PEM certificates to the trusted roots.
	CAFile string
	// Sender is the envelope sender (MAIL FROM).
	Sender string
	// Timeout limits a single session. Zero means 2 minutes. A context
	// deadline that comes earlier wins.
	Timeout time.Duration
}

// Provider sends each message in its own SMTP session.
type Provider struct {
	cfg       Config
	addr      string
	tlsConfig *tls.Config
}

var _ provider.Provider = (*Provider)(nil)

// New validates the TLS mode and prepares the client TLS configuration.
func New(cfg Config) (*Provider, error) {
	if cfg.TLS == "" {
		cfg.TLS = TLSStartTLS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch cfg.TLS {
	case TLSStartTLS, TLSImplicit, TLSNone:
	default:
		return nil, fmt.Errorf("unknown TLS mode %q", cfg.TLS)
	}

	tlsConfig, err := mytls.ClientConfig(cfg.Host, cfg.CAFile)
	if err != nil {
		return nil, err
	}

	return &Provider{
		cfg:       cfg,
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tlsConfig: tlsConfig,
	}, nil
}

// Send opens a session, delivers the message to msg.To and quits. SMTP
// reports no message id, so the returned id is always "".
func (p *Provider) Send(ctx context.Context, msg *message.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", p.cfg.Host),
		attribute.Int("smtp.port", p.cfg.Port),
		attribute.String("smtp.tls", p.cfg.TLS),
		attribute.Int("smtp.size", len(msg.Bytes())),
	)

	if err := p.send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", provider.ErrTransportFailure, err)
	}

	span.SetStatus(codes.Ok, "")
	return "", nil
}

func (p *Provider) send(ctx context.Context, msg *message.Message) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.addr, err)
	}

	// Abort blocking reads and writes when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return ctxErr(ctx, fmt.Errorf("failed to read greeting: %w", err))
	}
	defer client.Close()

	if p.cfg.TLS == TLSStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := client.StartTLS(p.tlsConfig); err != nil {
			return ctxErr(ctx, fmt.Errorf("failed to start TLS: %w", err))
		}
	}

	if p.cfg.Username != "" {
		auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return ctxErr(ctx, fmt.Errorf("failed to authenticate: %w", err))
		}
	}

	if err := client.Mail(p.cfg.Sender); err != nil {
		return ctxErr(ctx, fmt.Errorf("failed to set sender: %w", err))
	}
	if err := client.Rcpt(msg.To); err != nil {
		return ctxErr(ctx, fmt.Errorf("failed to set recipient %s: %w", msg.To, err))
	}

	w, err := client.Data()
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("failed to start data: %w", err))
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return ctxErr(ctx, fmt.Errorf("failed to write message: %w", err))
	}
	if err := w.Close(); err != nil {
		return ctxErr(ctx, fmt.Errorf("failed to finish data: %w", err))
	}

	// The message is accepted at this point; a failed QUIT is not an error.
	_ = client.Quit()
	return nil
}

func (p *Provider) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: min(dialTimeout, p.cfg.Timeout)}
	if p.cfg.TLS == TLSImplicit {
		td := &tls.Dialer{NetDialer: d, Config: p.tlsConfig}
		return td.DialContext(ctx, "tcp", p.addr)
	}
	return d.DialContext(ctx, "tcp", p.addr)
}

// ctxErr prefers the context error when the connection was torn down
// because ctx ended.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}
