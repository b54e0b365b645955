package provider

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Stdout writes each message as one JSON line instead of delivering it.
// Used for local runs and the Lambda stdin mode.
type Stdout struct {
	log zerolog.Logger
}

// NewStdout creates a Stdout provider writing to os.Stdout.
func NewStdout() *Stdout {
	return newStdoutTo(os.Stdout)
}

func newStdoutTo(w io.Writer) *Stdout {
	return &Stdout{log: zerolog.New(w).With().Timestamp().Str("provider", "stdout").Logger()}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send records the rendered message and reports it as sent.
func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	s.log.Log().
		Str("notification_id", msg.ID).
		Str("category", msg.Category).
		Str("from", msg.From).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Fields(map[string]any{"headers": msg.Headers}).
		Str("text", msg.TextBody).
		Msg("email")

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always succeeds.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
