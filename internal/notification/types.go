// Package notification defines the queue payload contract consumed by the
// delivery pipeline and the handler boundary it routes payloads to.
package notification

import (
	"context"
)

// EventType is the business occurrence that triggered a notification.
type EventType string

const (
	EventWelcome             EventType = "WELCOME"
	EventTrialStart          EventType = "TRIAL_START"
	EventTrial3DLeft         EventType = "TRIAL_3D_LEFT"
	EventTrialEnd            EventType = "TRIAL_END"
	EventSubscriptionActive  EventType = "SUBSCRIPTION_ACTIVE"
	EventSubscriptionPastDue EventType = "SUBSCRIPTION_PAST_DUE"
	EventResetPassword       EventType = "RESET_PASSWORD"
	EventMagicLink           EventType = "MAGIC_LINK"
)

// AllEventTypes returns every member of the closed EventType enumeration.
func AllEventTypes() []EventType {
	return []EventType{
		EventWelcome,
		EventTrialStart,
		EventTrial3DLeft,
		EventTrialEnd,
		EventSubscriptionActive,
		EventSubscriptionPastDue,
		EventResetPassword,
		EventMagicLink,
	}
}

// Transporter is the delivery channel of a notification.
type Transporter string

const (
	TransporterMail  Transporter = "MAIL"
	TransporterExpo  Transporter = "EXPO"
	TransporterSMS   Transporter = "SMS"
	TransporterInApp Transporter = "IN_APP"
)

// AllTransporters returns every member of the closed Transporter enumeration.
func AllTransporters() []Transporter {
	return []Transporter{TransporterMail, TransporterExpo, TransporterSMS, TransporterInApp}
}

// Payload is the NotificationQueuePayload carried by every queue message.
type Payload struct {
	UserID           string         `json:"userId" validate:"required,trimmed"`
	NotificationType EventType      `json:"notificationType" validate:"required,oneof=WELCOME TRIAL_START TRIAL_3D_LEFT TRIAL_END SUBSCRIPTION_ACTIVE SUBSCRIPTION_PAST_DUE RESET_PASSWORD MAGIC_LINK"`
	TransporterType  Transporter    `json:"transporterType" validate:"required,oneof=MAIL EXPO SMS IN_APP"`
	AdditionalData   map[string]any `json:"additionalData,omitempty"`
}

// Data returns a deep copy of the payload's additional data so callers
// cannot mutate a decoded payload, including its nested objects and arrays.
func (p Payload) Data() map[string]any {
	if p.AdditionalData == nil {
		return nil
	}
	return cloneObject(p.AdditionalData)
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types JSON decoding produces. Scalars are
// immutable and returned as is.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneObject(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// HandlerContext is what a Handler receives for one notification.
type HandlerContext struct {
	UserID           string
	NotificationType EventType
	TransporterType  Transporter
	AdditionalData   map[string]any
	CorrelationID    string
	RequestID        string
}

// String returns additionalData[key] when it is a non-empty string.
func (hc HandlerContext) String(key string) (string, bool) {
	v, ok := hc.AdditionalData[key].(string)
	return v, ok && v != ""
}

// Result is the outcome of one handler invocation. Callers branch on
// Success only; Metadata is informational.
type Result struct {
	Success   bool              `json:"success"`
	MessageID string            `json:"messageId,omitempty"`
	Error     error             `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler delivers a single notification over one transporter.
type Handler interface {
	Handle(ctx context.Context, hc HandlerContext) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, hc HandlerContext) (*Result, error)

// Handle calls f(ctx, hc).
func (f HandlerFunc) Handle(ctx context.Context, hc HandlerContext) (*Result, error) {
	return f(ctx, hc)
}
