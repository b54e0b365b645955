package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/metrics"
)

var _ Publisher = (*SQSPublisher)(nil)

// SQSPublisher sends messages to an AWS SQS queue. It publishes both to the
// dead-letter queue and, from the enqueue CLI, to the source queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
	sink     metrics.Sink
	log      zerolog.Logger
}

// NewSQSPublisher creates a new SQSPublisher targeting the given queue URL.
func NewSQSPublisher(client sqsAPI, queueURL string, sink metrics.Sink, log zerolog.Logger) *SQSPublisher {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		sink:     sink,
		log:      log,
	}
}

// Publish sends body with string message attributes via SQS SendMessage.
// It returns the SQS message ID.
func (p *SQSPublisher) Publish(ctx context.Context, body string, attrs map[string]string) (string, error) {
	out, err := p.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:          p.queueURL,
		MessageBody:       body,
		MessageAttributes: attrs,
	})
	p.sink.IncrementCounter(metrics.SQSOperations, operationLabels("SendMessage", err))
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}

	p.log.Debug().
		Str("queue_url", p.queueURL).
		Str("sqs_message_id", out.MessageID).
		Msg("sqs message published")

	return out.MessageID, nil
}
