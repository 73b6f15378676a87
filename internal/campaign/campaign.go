// Package campaign sends one rendered template to every recipient of a
// list, building and sending a separate message per recipient.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shineum/mailshot/internal/config"
	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
	"github.com/shineum/mailshot/internal/render"
	"github.com/shineum/mailshot/internal/title"
)

var tracer = otel.Tracer("github.com/shineum/mailshot/internal/campaign")

// Mailing describes what is sent. It is the same for every recipient.
type Mailing struct {
	TemplateFile    string
	TemplateData    map[string]any
	FallbackSubject string
	PlainText       string
	Sender          message.Sender
	Attachments     []message.Attachment
	InlineImages    []message.InlineImage
}

// MailingFromConfig extracts the mailing settings from a loaded config.
func MailingFromConfig(cfg *config.Config) Mailing {
	m := Mailing{
		TemplateFile:    cfg.TemplateFile,
		TemplateData:    cfg.TemplateData,
		FallbackSubject: cfg.FallbackSubject,
		PlainText:       cfg.PlainText,
		Sender:          message.Sender{Name: cfg.Sender.Name, Email: cfg.Sender.Email},
	}
	for _, path := range cfg.Attachments {
		m.Attachments = append(m.Attachments, message.Attachment{Path: path})
	}
	for _, img := range cfg.InlineImages {
		m.InlineImages = append(m.InlineImages, message.InlineImage{Path: img.Path, ContentID: img.ContentID})
	}
	return m
}

// Runner executes one mailing. Create it with New; it holds no state
// between runs other than its file cache.
type Runner struct {
	mailing  Mailing
	provider provider.Provider
	files    message.FileReader
	renderer *render.Renderer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithFiles sets the reader for the template, attachments and inline
// images. Reads are cached for the lifetime of the Runner either way.
func WithFiles(files message.FileReader) Option {
	return func(r *Runner) {
		r.files = files
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTracer sets the tracer used for per-recipient spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// New creates a Runner that delivers through p.
func New(m Mailing, p provider.Provider, opts ...Option) *Runner {
	r := &Runner{
		mailing:  m,
		provider: p,
		files:    message.OSFiles{},
		logger:   slog.Default(),
		tracer:   tracer,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.files = message.NewCachedFiles(r.files)
	r.renderer = render.New(r.files)
	return r
}

// Run renders the template once and sends it to each recipient in order.
//
// Template failures abort the run before anything is sent. A recipient whose
// message cannot be built or sent is recorded in the report and the run
// continues. If ctx ends, Run stops before the next recipient and returns
// the partial report together with the context error.
func (r *Runner) Run(ctx context.Context, recipients []string) (*Report, error) {
	doc, err := r.renderer.Render(r.mailing.TemplateFile, r.mailing.TemplateData)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	subject := doc.Subject
	if subject == "" {
		subject = title.ExtractWithFallback(doc.HTML, r.mailing.FallbackSubject)
	}

	r.logger.Info("starting mailing",
		"subject", subject,
		"recipients", len(recipients),
		"provider", r.provider.Name(),
	)

	report := &Report{Subject: subject}
	for _, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("mailing interrupted",
				"sent", report.Sent(),
				"remaining", len(recipients)-len(report.Results),
			)
			return report, err
		}
		report.Results = append(report.Results, r.sendOne(ctx, rcpt, subject, doc.HTML))
	}

	r.logger.Info("mailing finished",
		"sent", report.Sent(),
		"failed", report.Failed(),
	)
	return report, nil
}

func (r *Runner) sendOne(ctx context.Context, rcpt, subject, html string) Result {
	ctx, span := r.tracer.Start(ctx, "campaign.Send",
		trace.WithAttributes(
			attribute.String("mail.recipient", rcpt),
			attribute.String("mail.provider", r.provider.Name()),
		),
	)
	defer span.End()

	res := Result{Recipient: rcpt}

	msg, err := message.Build(message.Params{
		To:           rcpt,
		Subject:      subject,
		HTML:         html,
		From:         r.mailing.Sender,
		PlainText:    r.mailing.PlainText,
		Attachments:  r.mailing.Attachments,
		InlineImages: r.mailing.InlineImages,
	}, r.files)
	if err != nil {
		attrs := []any{"recipient", rcpt, "error", err}
		var resErr *message.ResourceError
		if errors.As(err, &resErr) {
			attrs = append(attrs, "path", resErr.Path)
		}
		r.logger.Error("failed to build message", attrs...)

		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		res.Err = err
		return res
	}

	id, err := r.provider.Send(ctx, msg)
	if err != nil {
		r.logger.Error("failed to send message",
			"recipient", rcpt,
			"provider", r.provider.Name(),
			"error", err,
		)

		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		res.Err = err
		return res
	}

	r.logger.Info("message sent",
		"recipient", rcpt,
		"provider", r.provider.Name(),
		"message_id", id,
	)
	span.SetAttributes(attribute.String("mail.message_id", id))
	span.SetStatus(codes.Ok, "")

	res.MessageID = id
	return res
}
