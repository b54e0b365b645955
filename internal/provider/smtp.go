package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// SMTP implements the Provider interface by relaying through an SMTP server
// with optional PLAIN authentication.
type SMTP struct {
	addr      string
	host      string
	username  string
	password  string
	tlsMode   string
	tlsConfig *tls.Config
	timeout   time.Duration
	now       func() time.Time
}

// NewSMTP creates an SMTP provider from the given configuration.
func NewSMTP(cfg ProviderConfig) *SMTP {
	return &SMTP{
		addr:      net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host:      cfg.SMTPHost,
		username:  cfg.Username,
		password:  cfg.Password,
		tlsMode:   cfg.TLSMode,
		tlsConfig: &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12},
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

func (s *SMTP) GetName() string { return "smtp" }

// Send relays msg through the configured server.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if len(msg.To) == 0 {
		return nil, errclass.New(errclass.KindValidation, "smtp: no recipients")
	}

	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return nil, s.wrap("auth", err)
		}
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return nil, s.wrap("mail from", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return nil, s.wrap("rcpt to "+rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return nil, s.wrap("data", err)
	}
	messageID := "<" + uuid.NewString() + "@" + s.host + ">"
	if _, err := w.Write(s.buildMessage(msg, messageID)); err != nil {
		return nil, s.wrap("write", err)
	}
	if err := w.Close(); err != nil {
		return nil, s.wrap("close data", err)
	}
	// The message is accepted once DATA is closed; a failed QUIT is ignored.
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: messageID,
		Status:            StatusSent,
		Timestamp:         s.now(),
	}, nil
}

// HealthCheck opens a session and issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return s.wrap("noop", err)
	}
	return c.Quit()
}

func (s *SMTP) dial(ctx context.Context) (*gosmtp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}

	var (
		c   *gosmtp.Client
		err error
	)
	switch s.tlsMode {
	case "implicit":
		c, err = gosmtp.DialTLS(s.addr, s.tlsConfig)
	case "none":
		c, err = gosmtp.Dial(s.addr)
	default:
		c, err = gosmtp.DialStartTLS(s.addr, s.tlsConfig)
	}
	if err != nil {
		return nil, s.wrap("dial", err)
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout || timeout <= 0 {
			timeout = d
		}
	}
	if timeout > 0 {
		c.CommandTimeout = timeout
		c.SubmissionTimeout = timeout
	}
	return c, nil
}

// wrap converts SMTP replies into a ProviderError and tags everything else
// as a network failure.
func (s *SMTP) wrap(stage string, err error) error {
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		return &ProviderError{
			Provider:   "smtp",
			StatusCode: se.Code,
			Message:    stage + ": " + se.Message,
			Kind:       kindForSMTPCode(se.Code),
		}
	}
	return networkError("smtp", fmt.Errorf("%s: %w", stage, err))
}

func (s *SMTP) buildMessage(msg *Message, messageID string) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "From: %s\r\n", msg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&sb, "Message-ID: %s\r\n", messageID)
	for k, v := range msg.Headers {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, v)
	}
	sb.WriteString("MIME-Version: 1.0\r\n")

	body := msg.TextBody
	if msg.HTMLBody != "" && msg.TextBody == "" {
		sb.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		body = msg.HTMLBody
	} else {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(sb.String())
}
