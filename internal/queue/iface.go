package queue

import (
	"context"
	"time"

	"github.com/sungwon/notification-pipeline/internal/notification"
)

// Source is a queue that records are received from and acknowledged on.
// A record that is never acknowledged is redelivered by the queue once its
// visibility timeout lapses.
type Source interface {
	Receive(ctx context.Context, limit int) ([]Record, error)
	Ack(ctx context.Context, rec Record) error
}

// VisibilityExtender is implemented by sources that can keep an in-flight
// record hidden from other consumers. The poller calls ExtendVisibility
// periodically while a record is processed so that it is not redelivered
// mid-flight when processing outlasts the visibility timeout.
type VisibilityExtender interface {
	ExtendVisibility(ctx context.Context, rec Record, d time.Duration) error
}

// Publisher writes a serialized message to a destination queue.
type Publisher interface {
	Publish(ctx context.Context, body string, attrs map[string]string) (string, error)
}

// Dispatcher routes a validated payload to its handler. Implementations
// never return a nil result.
type Dispatcher interface {
	Dispatch(ctx context.Context, p notification.Payload) *notification.Result
}
