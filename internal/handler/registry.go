package handler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/dispatch"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/notification"
	"github.com/sungwon/notification-pipeline/internal/provider"
)

// Deps are the collaborators the concrete handlers need.
type Deps struct {
	Provider provider.Provider
	Users    UserStore
	From     string
	Metrics  metrics.Sink
	Logger   zerolog.Logger
}

// NewRegistry registers a MailHandler for every MAIL event type and a
// Placeholder for every other transporter.
func NewRegistry(d Deps) (*dispatch.Registry, error) {
	if d.Provider == nil {
		return nil, fmt.Errorf("handler registry: email provider is required")
	}

	r := dispatch.NewRegistry()
	for _, e := range notification.AllEventTypes() {
		h, err := NewMailHandler(e, d.Provider, d.Users, d.From, d.Metrics, d.Logger)
		if err != nil {
			return nil, fmt.Errorf("handler registry: %w", err)
		}
		r.Register(notification.TransporterMail, e, h)
	}

	for _, t := range notification.AllTransporters() {
		if t == notification.TransporterMail {
			continue
		}
		r.RegisterTransporter(t, func(e notification.EventType) notification.Handler {
			return NewPlaceholder(t, e, d.Logger)
		})
	}
	return r, nil
}
