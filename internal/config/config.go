// Package config provides YAML-file-first configuration loading with
// environment variable overrides for mailshot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is loaded, if present, before environment overrides are applied.
// Variables already set in the process environment win over the file.
const DotEnvFile = ".env"

// ErrMalformedInput indicates missing or unparseable configuration or
// recipient data. No recipient can be processed without it.
var ErrMalformedInput = errors.New("malformed input")

// Supported provider names.
const (
	ProviderGmail    = "gmail"
	ProviderGraph    = "graph"
	ProviderSES      = "ses"
	ProviderSMTP     = "smtp"
	ProviderResend   = "resend"
	ProviderPostmark = "postmark"
	ProviderStdout   = "stdout"
)

// SMTP TLS modes.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
	TLSNone     = "none"
)

// Config holds the complete application configuration.
type Config struct {
	Provider        string         `yaml:"provider"`
	Sender          SenderConfig   `yaml:"sender"`
	RecipientsFile  string         `yaml:"recipients_file"`
	TemplateFile    string         `yaml:"template_file"`
	TemplateData    map[string]any `yaml:"template_data"`
	FallbackSubject string         `yaml:"fallback_subject"`
	PlainText       string         `yaml:"plain_text"`
	Attachments     StringList     `yaml:"attachments"`
	InlineImages    []InlineImage  `yaml:"inline_images"`

	Gmail    GmailConfig    `yaml:"gmail"`
	Graph    GraphConfig    `yaml:"graph"`
	SES      SESConfig      `yaml:"ses"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Resend   ResendConfig   `yaml:"resend"`
	Postmark PostmarkConfig `yaml:"postmark"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SenderConfig holds the From address.
type SenderConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// GmailConfig holds Gmail API OAuth2 configuration.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	UserID          string `yaml:"user_id"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// SMTPConfig holds SMTP relay configuration.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	TLS      string        `yaml:"tls"`
	CAFile   string        `yaml:"ca_file"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// PostmarkConfig holds Postmark API configuration.
type PostmarkConfig struct {
	ServerToken   string `yaml:"server_token"`
	MessageStream string `yaml:"message_stream"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. JSON files parse as well.
// Returns an error if the specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrMalformedInput, err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields every run needs. Provider credentials are
// checked when the provider is selected.
func (c *Config) Validate() error {
	var errs []error

	if c.RecipientsFile == "" {
		errs = append(errs, errors.New("recipients_file is required"))
	}
	if c.TemplateFile == "" {
		errs = append(errs, errors.New("template_file is required"))
	}
	for i, img := range c.InlineImages {
		if img.Path == "" {
			errs = append(errs, fmt.Errorf("inline_images[%d]: path is required", i))
		}
		if img.ContentID == "" {
			errs = append(errs, fmt.Errorf("inline_images[%d]: cid is required", i))
		}
	}
	for i, path := range c.Attachments {
		if strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("attachments[%d]: path is empty", i))
		}
	}
	switch c.Provider {
	case "", ProviderGmail, ProviderGraph, ProviderSES, ProviderSMTP, ProviderResend, ProviderPostmark, ProviderStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	switch c.SMTP.TLS {
	case TLSStartTLS, TLSImplicit, TLSNone:
	default:
		errs = append(errs, fmt.Errorf("unknown smtp tls mode %q", c.SMTP.TLS))
	}

	if len(errs) > 0 {
		return errors.Join(ErrMalformedInput, errors.Join(errs...))
	}
	return nil
}

// GmailConfigured returns true if the OAuth2 client secrets file is set.
func (c *Config) GmailConfigured() bool {
	return c.Gmail.CredentialsFile != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if the SES region and a sender address are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.Sender.Email != ""
}

// SMTPConfigured returns true if an SMTP host and a sender address are set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.Sender.Email != ""
}

// ResendConfigured returns true if a Resend API key and a sender address are set.
func (c *Config) ResendConfigured() bool {
	return c.Resend.APIKey != "" && c.Sender.Email != ""
}

// PostmarkConfigured returns true if a Postmark server token and a sender address are set.
func (c *Config) PostmarkConfigured() bool {
	return c.Postmark.ServerToken != "" && c.Sender.Email != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.RecipientsFile = "recipients/recipients.json"
	c.TemplateFile = "messages/message.html"
	c.FallbackSubject = "No title"
	c.Gmail.CredentialsFile = "credentials.json"
	c.Gmail.TokenFile = "token.json"
	c.Gmail.UserID = "me"
	c.SMTP.Port = 587
	c.SMTP.TLS = TLSStartTLS
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	// A missing .env file is fine.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to load %s: %v", ErrMalformedInput, DotEnvFile, err)
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SENDER_NAME"); v != "" {
		c.Sender.Name = v
	}
	if v := os.Getenv("SENDER_EMAIL"); v != "" {
		c.Sender.Email = v
	}
	if v := os.Getenv("RECIPIENTS_FILE"); v != "" {
		c.RecipientsFile = v
	}
	if v := os.Getenv("TEMPLATE_FILE"); v != "" {
		c.TemplateFile = v
	}
	if v := os.Getenv("FALLBACK_SUBJECT"); v != "" {
		c.FallbackSubject = v
	}
	if v := os.Getenv("ATTACHMENTS"); v != "" {
		c.Attachments = splitList(v)
	}

	if v := os.Getenv("GMAIL_CREDENTIALS_FILE"); v != "" {
		c.Gmail.CredentialsFile = v
	}
	if v := os.Getenv("GMAIL_TOKEN_FILE"); v != "" {
		c.Gmail.TokenFile = v
	}
	if v := os.Getenv("GMAIL_USER_ID"); v != "" {
		c.Gmail.UserID = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Graph.Sender = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SMTP_PORT: %v", ErrMalformedInput, err)
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_TLS"); v != "" {
		c.SMTP.TLS = strings.ToLower(v)
	}
	if v := os.Getenv("SMTP_CA_FILE"); v != "" {
		c.SMTP.CAFile = v
	}
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SMTP_TIMEOUT: %v", ErrMalformedInput, err)
		}
		c.SMTP.Timeout = timeout
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Resend.APIKey = v
	}

	if v := os.Getenv("POSTMARK_SERVER_TOKEN"); v != "" {
		c.Postmark.ServerToken = v
	}
	if v := os.Getenv("POSTMARK_MESSAGE_STREAM"); v != "" {
		c.Postmark.MessageStream = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
