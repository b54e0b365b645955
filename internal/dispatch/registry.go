// Package dispatch routes validated notification payloads to the handler
// registered for their (transporter, event type) pair.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sungwon/notification-pipeline/internal/notification"
)

// ErrIncompleteRegistry is returned when a (transporter, event type) pair
// of the closed enumerations has no handler.
var ErrIncompleteRegistry = errors.New("dispatch: handler registry is incomplete")

// Registry collects handlers at startup. It is not safe for concurrent use;
// it is frozen into a Dispatcher by New.
type Registry struct {
	handlers map[notification.Transporter]map[notification.EventType]notification.Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[notification.Transporter]map[notification.EventType]notification.Handler),
	}
}

// Register sets the handler for one (transporter, event type) pair,
// replacing any earlier registration.
func (r *Registry) Register(t notification.Transporter, e notification.EventType, h notification.Handler) *Registry {
	byEvent, ok := r.handlers[t]
	if !ok {
		byEvent = make(map[notification.EventType]notification.Handler)
		r.handlers[t] = byEvent
	}
	byEvent[e] = h
	return r
}

// RegisterTransporter registers a handler for every event type of t using
// the given constructor.
func (r *Registry) RegisterTransporter(t notification.Transporter, newHandler func(notification.EventType) notification.Handler) *Registry {
	for _, e := range notification.AllEventTypes() {
		r.Register(t, e, newHandler(e))
	}
	return r
}

// missing lists every pair without a non-nil handler.
func (r *Registry) missing() []string {
	var out []string
	for _, t := range notification.AllTransporters() {
		for _, e := range notification.AllEventTypes() {
			if r.handlers[t][e] == nil {
				out = append(out, string(t)+"/"+string(e))
			}
		}
	}
	return out
}

// validate fails when any pair lacks a handler.
func (r *Registry) validate() error {
	if m := r.missing(); len(m) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRegistry, strings.Join(m, ", "))
	}
	return nil
}
