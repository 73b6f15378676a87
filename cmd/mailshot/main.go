// Package main is the entry point for the mailshot bulk sender.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-cz/devslog"

	"github.com/shineum/mailshot/internal/campaign"
	"github.com/shineum/mailshot/internal/config"
	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/provider"
	"github.com/shineum/mailshot/internal/provider/gmail"
	"github.com/shineum/mailshot/internal/provider/graph"
	"github.com/shineum/mailshot/internal/provider/postmark"
	"github.com/shineum/mailshot/internal/provider/resend"
	"github.com/shineum/mailshot/internal/provider/ses"
	"github.com/shineum/mailshot/internal/provider/smtp"
	"github.com/shineum/mailshot/internal/provider/stdout"
)

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one mailing and returns the process exit code. Messages
// printed by the dry-run provider and the final summary go to stdout; logs
// go to stderr.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("mailshot", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "path to YAML configuration file (optional)")
	providerName := flags.String("provider", "", "delivery provider: gmail, graph, ses, smtp, resend, postmark or stdout")
	dryRun := flags.Bool("dry-run", false, "print each message instead of sending it")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFatal
	}
	if *providerName != "" {
		cfg.Provider = *providerName
	}
	if *dryRun {
		cfg.Provider = config.ProviderStdout
	}

	logger := setupLogger(cfg.Logging, stderr)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitFatal
	}

	recipients, err := config.LoadRecipients(cfg.RecipientsFile)
	if err != nil {
		logger.Error("failed to load recipients", "path", cfg.RecipientsFile, "error", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, err := selectProvider(ctx, cfg, stdout, stderr, logger)
	if err != nil {
		logger.Error("failed to set up provider", "provider", cfg.Provider, "error", err)
		return exitFatal
	}

	runner := campaign.New(campaign.MailingFromConfig(cfg), prov, campaign.WithLogger(logger))
	report, err := runner.Run(ctx, recipients)
	if report != nil {
		if werr := report.WriteSummary(stdout); werr != nil {
			logger.Warn("failed to write summary", "error", werr)
		}
	}
	if err != nil {
		logger.Error("mailing aborted", "error", err)
		return exitFatal
	}
	if report.Failed() > 0 {
		return exitPartial
	}
	return exitOK
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger builds the logger for the run and installs it as the slog
// default. Format "dev" selects a colored human-readable handler; anything
// else logs JSON.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "dev" {
		handler = devslog.NewHandler(w, &devslog.Options{
			HandlerOptions:    &slog.HandlerOptions{Level: level},
			NewLineAfterLog:   true,
			MaxSlicePrintSize: 40,
			SortKeys:          true,
			TimeFormat:        "[15:04:05]",
			DebugColor:        devslog.Magenta,
			StringerFormatter: true,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// selectProvider chooses the delivery backend. An explicit provider must be
// fully configured. With no provider set, the first configured one of
// Graph, SES, SMTP, Resend, Postmark and Gmail (when its client secrets file
// exists) is used, falling back to stdout.
func selectProvider(ctx context.Context, cfg *config.Config, stdoutW, prompt io.Writer, logger *slog.Logger) (provider.Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = detectProvider(cfg)
		logger.Info("provider auto-detected", "provider", name)
	}

	sender := message.Sender{Name: cfg.Sender.Name, Email: cfg.Sender.Email}

	switch name {
	case config.ProviderGmail:
		if !cfg.GmailConfigured() {
			return nil, errors.New("gmail provider requires gmail.credentials_file")
		}
		p, err := gmail.New(ctx, gmail.Config{
			CredentialsFile: cfg.Gmail.CredentialsFile,
			TokenFile:       cfg.Gmail.TokenFile,
			UserID:          cfg.Gmail.UserID,
			Prompt:          prompt,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.ProviderGraph:
		if !cfg.GraphConfigured() {
			return nil, errors.New("graph provider requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER")
		}
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, errors.New("ses provider requires SES_REGION and SENDER_EMAIL")
		}
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          sender.String(),
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.ProviderSMTP:
		if !cfg.SMTPConfigured() {
			return nil, errors.New("smtp provider requires SMTP_HOST and SENDER_EMAIL")
		}
		p, err := smtp.New(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			TLS:      cfg.SMTP.TLS,
			CAFile:   cfg.SMTP.CAFile,
			Sender:   cfg.Sender.Email,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.ProviderResend:
		if !cfg.ResendConfigured() {
			return nil, errors.New("resend provider requires RESEND_API_KEY and SENDER_EMAIL")
		}
		return resend.New(resend.Config{APIKey: cfg.Resend.APIKey}), nil

	case config.ProviderPostmark:
		if !cfg.PostmarkConfigured() {
			return nil, errors.New("postmark provider requires POSTMARK_SERVER_TOKEN and SENDER_EMAIL")
		}
		return postmark.New(postmark.Config{
			ServerToken:   cfg.Postmark.ServerToken,
			MessageStream: cfg.Postmark.MessageStream,
		}), nil

	case config.ProviderStdout:
		return stdout.NewWithWriter(stdoutW), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrMalformedInput, name)
	}
}

func detectProvider(cfg *config.Config) string {
	switch {
	case cfg.GraphConfigured():
		return config.ProviderGraph
	case cfg.SESConfigured():
		return config.ProviderSES
	case cfg.SMTPConfigured():
		return config.ProviderSMTP
	case cfg.ResendConfigured():
		return config.ProviderResend
	case cfg.PostmarkConfigured():
		return config.ProviderPostmark
	case cfg.GmailConfigured() && fileExists(cfg.Gmail.CredentialsFile):
		return config.ProviderGmail
	default:
		return config.ProviderStdout
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
