package handler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/notification"
)

// Placeholder acknowledges notifications for transporters that have no
// delivery channel yet.
type Placeholder struct {
	transporter notification.Transporter
	event       notification.EventType
	log         zerolog.Logger
}

// NewPlaceholder returns a Placeholder for one (transporter, event type) pair.
func NewPlaceholder(t notification.Transporter, e notification.EventType, log zerolog.Logger) *Placeholder {
	return &Placeholder{transporter: t, event: e, log: log}
}

// Handle implements notification.Handler. It always succeeds.
func (p *Placeholder) Handle(_ context.Context, hc notification.HandlerContext) (*notification.Result, error) {
	p.log.Info().
		Str("transporter", string(p.transporter)).
		Str("event_type", string(p.event)).
		Str("user_id", hc.UserID).
		Str("correlation_id", hc.CorrelationID).
		Msg("handler not implemented, acknowledging")
	return &notification.Result{
		Success:  true,
		Metadata: map[string]string{"handler": "placeholder"},
	}, nil
}
