package dispatch

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/notification"
)

// Dispatcher is an immutable two-level handler table. Dispatch never returns
// an error and never panics: every failure becomes a failed Result.
type Dispatcher struct {
	handlers map[notification.Transporter]map[notification.EventType]notification.Handler
	log      zerolog.Logger
}

// New freezes the registry into a Dispatcher. It fails when any
// (transporter, event type) pair lacks a handler.
func New(r *Registry, log zerolog.Logger) (*Dispatcher, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	handlers := make(map[notification.Transporter]map[notification.EventType]notification.Handler, len(r.handlers))
	for t, byEvent := range r.handlers {
		handlers[t] = maps.Clone(byEvent)
	}
	return &Dispatcher{handlers: handlers, log: log}, nil
}

// Dispatch builds the handler context from p and invokes the registered
// handler.
func (d *Dispatcher) Dispatch(ctx context.Context, p notification.Payload) (res *notification.Result) {
	hc := notification.HandlerContext{
		UserID:           p.UserID,
		NotificationType: p.NotificationType,
		TransporterType:  p.TransporterType,
		AdditionalData:   p.Data(),
		CorrelationID:    logger.CorrelationIDFromContext(ctx),
		RequestID:        logger.RequestIDFromContext(ctx),
	}

	h := d.handlers[p.TransporterType][p.NotificationType]
	if h == nil {
		// Unreachable for validated payloads; New rejects incomplete tables.
		return failed(errclass.New(errclass.KindConfiguration,
			fmt.Sprintf("no handler for %s/%s", p.TransporterType, p.NotificationType)))
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("user_id", p.UserID).
				Str("event_type", string(p.NotificationType)).
				Str("transporter", string(p.TransporterType)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("notification handler panicked")
			res = failed(errclass.New(errclass.KindInternal, fmt.Sprintf("handler panic: %v", r)))
		}
	}()

	result, err := h.Handle(ctx, hc)
	switch {
	case err != nil:
		if result != nil && result.Metadata != nil {
			out := failed(err)
			out.Metadata = result.Metadata
			return out
		}
		return failed(err)
	case result == nil:
		return failed(errclass.New(errclass.KindInternal, "handler returned no result"))
	case !result.Success && result.Error == nil:
		out := *result
		out.Error = errclass.New(errclass.KindUnknown, "handler reported failure without an error")
		return &out
	default:
		return result
	}
}

func failed(err error) *notification.Result {
	return &notification.Result{Success: false, Error: err}
}
