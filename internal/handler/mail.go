// Package handler implements the notification handlers registered with the
// dispatcher: email delivery for MAIL and placeholders for the other
// transporters.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/notification"
	"github.com/sungwon/notification-pipeline/internal/provider"
	"github.com/sungwon/notification-pipeline/internal/storage"
)

// UserStore looks up the recipient of a notification.
type UserStore interface {
	GetUser(ctx context.Context, id string) (storage.User, error)
}

var _ UserStore = (*storage.UserRepository)(nil)

// ErrNoRecipient is returned when neither the payload nor the user store
// yields an email address.
var ErrNoRecipient = errclass.New(errclass.KindValidation, "no recipient email address")

const defaultName = "there"

// MailHandler renders and sends the email for one event type.
type MailHandler struct {
	event    notification.EventType
	tmpl     *mailTemplate
	provider provider.Provider
	users    UserStore
	from     string
	sink     metrics.Sink
	log      zerolog.Logger
}

// NewMailHandler creates the MAIL handler for event. users may be nil, in
// which case the recipient must be supplied as additionalData.email.
func NewMailHandler(
	event notification.EventType,
	p provider.Provider,
	users UserStore,
	from string,
	sink metrics.Sink,
	log zerolog.Logger,
) (*MailHandler, error) {
	tmpl, err := parseMailTemplate(event)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &MailHandler{
		event:    event,
		tmpl:     tmpl,
		provider: p,
		users:    users,
		from:     from,
		sink:     sink,
		log:      log.With().Str("transporter", string(notification.TransporterMail)).Str("event_type", string(event)).Logger(),
	}, nil
}

// Handle implements notification.Handler.
func (h *MailHandler) Handle(ctx context.Context, hc notification.HandlerContext) (*notification.Result, error) {
	data, err := h.recipient(ctx, hc)
	if err != nil {
		return nil, err
	}

	subject, body, err := h.tmpl.render(data)
	if err != nil {
		return nil, errclass.Wrap(errclass.KindConfiguration, err, "render "+string(h.event))
	}

	msg := &provider.Message{
		ID:       uuid.New().String(),
		Category: string(h.event),
		From:     h.from,
		To:       []string{data.Email},
		Subject:  subject,
		TextBody: body,
		Headers: map[string]string{
			"X-Notification-Type": string(h.event),
		},
	}
	if hc.CorrelationID != "" {
		msg.Headers["X-Correlation-Id"] = hc.CorrelationID
	}

	meta := map[string]string{"provider": h.provider.GetName()}

	start := time.Now()
	res, err := h.provider.Send(ctx, msg)
	if err != nil {
		h.log.Warn().Err(err).
			Str("user_id", hc.UserID).
			Str("provider", meta["provider"]).
			Str("correlation_id", hc.CorrelationID).
			Msg("email send failed")
		return &notification.Result{Success: false, Error: err, Metadata: meta}, err
	}

	h.sink.IncrementCounter(metrics.EmailsSent, metrics.Labels{"event_type": string(h.event)})
	h.log.Info().
		Str("user_id", hc.UserID).
		Str("provider", meta["provider"]).
		Str("provider_message_id", res.ProviderMessageID).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("email sent")

	return &notification.Result{
		Success:   true,
		MessageID: res.ProviderMessageID,
		Metadata:  meta,
	}, nil
}

// recipient resolves the address and display name, preferring the payload
// over the user store.
func (h *MailHandler) recipient(ctx context.Context, hc notification.HandlerContext) (templateData, error) {
	d := templateData{UserID: hc.UserID, Data: hc.AdditionalData, Name: defaultName}

	if email, ok := hc.String("email"); ok {
		d.Email = email
		if name, ok := hc.String("name"); ok {
			d.Name = name
		}
		return d, nil
	}

	if h.users == nil {
		return d, ErrNoRecipient
	}
	u, err := h.users.GetUser(ctx, hc.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return d, err
		}
		return d, fmt.Errorf("look up recipient: %w", err)
	}
	if u.Email == "" {
		return d, ErrNoRecipient
	}
	d.Email = u.Email
	if u.Name != "" {
		d.Name = u.Name
	}
	return d, nil
}
