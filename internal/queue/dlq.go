package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/envelope"
	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/msgstore"
)

// MaxDLQMessageSize is the largest message body SQS accepts.
const MaxDLQMessageSize = 256 * 1024

// maxReasonAttribute bounds the failureReason message attribute.
const maxReasonAttribute = 256

// ErrorDetails describes the classified failure that dead-lettered a message.
type ErrorDetails struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Retryable  bool   `json:"retryable"`
	MaxRetries int    `json:"maxRetries"`
}

// DLQMessage is the JSON document published to the dead-letter destination.
type DLQMessage struct {
	OriginalMessageID     string            `json:"originalMessageId"`
	OriginalBody          string            `json:"originalBody"`
	OriginalBodyRef       string            `json:"originalBodyRef,omitempty"`
	OriginalBodyTruncated bool              `json:"originalBodyTruncated,omitempty"`
	OriginalAttributes    map[string]string `json:"originalAttributes"`
	FailureReason         string            `json:"failureReason"`
	ErrorDetails          ErrorDetails      `json:"errorDetails"`
	RetryCount            int               `json:"retryCount"`
	FailedAt              time.Time         `json:"failedAt"`
	Context               errclass.Context  `json:"context"`
}

// DeadLetter is a message whose processing has permanently failed.
type DeadLetter struct {
	MessageID  string
	Body       string
	Attributes map[string]string
	Classified errclass.Classified
	RetryCount int
}

// DeadLetterManager publishes permanently failed messages to the dead-letter
// destination. It is the last-resort failure path, so Send never returns an
// error: a failed publish is logged and counted.
type DeadLetterManager struct {
	publisher Publisher
	archive   msgstore.MessageStore
	sink      metrics.Sink
	log       zerolog.Logger
	now       func() time.Time
}

// NewDeadLetterManager creates a DeadLetterManager. archive may be nil, in
// which case oversized bodies are truncated instead of archived.
func NewDeadLetterManager(publisher Publisher, archive msgstore.MessageStore, sink metrics.Sink, log zerolog.Logger) *DeadLetterManager {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &DeadLetterManager{
		publisher: publisher,
		archive:   archive,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
}

// Send builds, serializes, and publishes the DLQMessage for dl. It reports
// whether the publish succeeded and never panics.
func (m *DeadLetterManager) Send(ctx context.Context, dl DeadLetter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.failed(dl, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	c := dl.Classified
	msg := DLQMessage{
		OriginalMessageID:  dl.MessageID,
		OriginalBody:       dl.Body,
		OriginalAttributes: dl.Attributes,
		FailureReason:      c.Message(),
		ErrorDetails: ErrorDetails{
			Type:       fmt.Sprintf("%T", c.Err),
			Message:    c.Message(),
			Severity:   string(c.Severity),
			Category:   string(c.Category),
			Retryable:  c.Retryable,
			MaxRetries: c.MaxRetries,
		},
		RetryCount: dl.RetryCount,
		FailedAt:   m.now().UTC(),
		Context:    c.Context,
	}
	if msg.OriginalAttributes == nil {
		msg.OriginalAttributes = map[string]string{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.failed(dl, fmt.Errorf("marshal dlq message: %w", err))
		return false
	}

	if len(data) > MaxDLQMessageSize {
		data, err = m.shrink(ctx, msg)
		if err != nil {
			m.failed(dl, err)
			return false
		}
	}

	attrs := map[string]string{
		"messageId":         dl.MessageID,
		"originalMessageId": dl.MessageID,
		"failureReason":     truncate(msg.FailureReason, maxReasonAttribute),
		"severity":          string(c.Severity),
		"category":          string(c.Category),
		"retryCount":        strconv.Itoa(dl.RetryCount),
	}
	if attrs["failureReason"] == "" {
		attrs["failureReason"] = "unknown"
	}

	dlqID, err := m.publisher.Publish(ctx, string(data), attrs)
	if err != nil {
		m.failed(dl, err)
		return false
	}

	m.sink.IncrementCounter(metrics.MessagesSentToDLQ, nil)
	m.log.Error().
		Str("message_id", dl.MessageID).
		Str("dlq_message_id", dlqID).
		Str("category", string(c.Category)).
		Str("severity", string(c.Severity)).
		Int("retry_count", dl.RetryCount).
		Str("failure_reason", msg.FailureReason).
		Msg("message sent to dead letter queue")
	return true
}

// shrink moves the original body out of an oversized DLQ message, into the
// archive when one is configured, otherwise by truncating it.
func (m *DeadLetterManager) shrink(ctx context.Context, msg DLQMessage) ([]byte, error) {
	if m.archive != nil {
		ref := "dlq/" + msg.OriginalMessageID + "-" + uuid.NewString()
		if err := m.archive.Put(ctx, ref, []byte(msg.OriginalBody)); err == nil {
			msg.OriginalBody = ""
			msg.OriginalBodyRef = ref
		} else {
			m.log.Warn().Err(err).
				Str("message_id", msg.OriginalMessageID).
				Msg("failed to archive oversized dlq body, truncating")
		}
	}
	if msg.OriginalBodyRef == "" {
		msg.OriginalBody = envelope.Preview(msg.OriginalBody)
		msg.OriginalBodyTruncated = true
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal dlq message: %w", err)
	}
	if len(data) > MaxDLQMessageSize {
		return nil, fmt.Errorf("dlq message is %d bytes after shrinking, limit %d", len(data), MaxDLQMessageSize)
	}
	return data, nil
}

func (m *DeadLetterManager) failed(dl DeadLetter, err error) {
	m.sink.IncrementCounter(metrics.DLQSendFailures, nil)
	m.log.Error().Err(err).
		Bool("critical", true).
		Str("message_id", dl.MessageID).
		Str("category", string(dl.Classified.Category)).
		Str("severity", string(dl.Classified.Severity)).
		Int("retry_count", dl.RetryCount).
		Msg("failed to send message to dead letter queue")
}

// IsHealthy publishes a synthetic health_check message to verify the
// dead-letter destination is reachable.
func (m *DeadLetterManager) IsHealthy(ctx context.Context) error {
	id := "health-check-" + uuid.NewString()
	body, err := json.Marshal(map[string]any{
		"type":      "health_check",
		"id":        id,
		"timestamp": m.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal health check: %w", err)
	}

	if _, err := m.publisher.Publish(ctx, string(body), map[string]string{
		"messageId":     id,
		"failureReason": "health_check",
	}); err != nil {
		return fmt.Errorf("dlq health check: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
