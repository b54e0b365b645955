package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for an email transport.
type ProviderConfig struct {
	// Type identifies the provider: "stdout", "sendgrid", or "smtp".
	Type string `mapstructure:"type"`

	// From is the sender address used on every message.
	From string `mapstructure:"from"`

	// APIKey is the SendGrid API key.
	APIKey string `mapstructure:"api_key"`

	// Endpoint overrides the default API URL (useful for testing).
	Endpoint string `mapstructure:"endpoint"`

	// Timeout is the maximum duration for API calls and SMTP commands.
	Timeout time.Duration `mapstructure:"timeout"`

	// SMTP relay settings.
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TLSMode is "starttls" (default), "implicit", or "none".
	TLSMode string `mapstructure:"tls_mode"`
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type and
// fills in defaults.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
		if c.From == "" {
			return errors.New("sendgrid: from is required")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("smtp: smtp_host is required")
		}
		if c.From == "" {
			return errors.New("smtp: from is required")
		}
		if c.SMTPPort == 0 {
			c.SMTPPort = 587
		}
		switch c.TLSMode {
		case "":
			c.TLSMode = "starttls"
		case "starttls", "implicit", "none":
		default:
			return errors.New("smtp: unknown tls_mode: " + c.TLSMode)
		}
	case "stdout":
		// No configuration required.
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
