package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/metrics"
)

var (
	_ Source             = (*SQSSource)(nil)
	_ VisibilityExtender = (*SQSSource)(nil)
)

// SQSSource long-polls an AWS SQS queue.
type SQSSource struct {
	client     sqsAPI
	queueURL   string
	waitTime   int32
	visTimeout int32
	sink       metrics.Sink
	log        zerolog.Logger
}

// NewSQSSource creates an SQSSource for queueURL configured from cfg.
func NewSQSSource(client sqsAPI, queueURL string, cfg Config, sink metrics.Sink, log zerolog.Logger) *SQSSource {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &SQSSource{
		client:     client,
		queueURL:   queueURL,
		waitTime:   cfg.WaitTimeSeconds,
		visTimeout: cfg.VisibilityTimeout,
		sink:       sink,
		log:        log,
	}
}

// Receive long-polls for up to limit messages (at most 10).
func (s *SQSSource) Receive(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	out, err := s.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            s.queueURL,
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     s.waitTime,
		VisibilityTimeout:   s.visTimeout,
	})
	if err != nil {
		s.sink.IncrementCounter(metrics.SQSOperations, operationLabels("ReceiveMessage", err))
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}
	s.sink.IncrementCounter(metrics.SQSOperations, operationLabels("ReceiveMessage", nil))
	s.sink.SetGauge(metrics.SQSMessagesReceived, float64(len(out.Messages)), nil)

	records := make([]Record, 0, len(out.Messages))
	for _, m := range out.Messages {
		records = append(records, Record{
			ID:            m.MessageID,
			ReceiptHandle: m.ReceiptHandle,
			Body:          m.Body,
			Attributes:    m.MessageAttributes,
			ReceiveCount:  max1(m.ReceiveCount),
			SentAt:        sentAt(m.SentTimestamp),
		})
	}
	return records, nil
}

// Ack deletes the record from the queue.
func (s *SQSSource) Ack(ctx context.Context, rec Record) error {
	err := s.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      s.queueURL,
		ReceiptHandle: rec.ReceiptHandle,
	})
	s.sink.IncrementCounter(metrics.SQSOperations, operationLabels("DeleteMessage", err))
	if err != nil {
		return fmt.Errorf("sqs delete message %s: %w", rec.ID, err)
	}
	return nil
}

// ExtendVisibility hides the record for another d, counted from now.
func (s *SQSSource) ExtendVisibility(ctx context.Context, rec Record, d time.Duration) error {
	err := s.client.ChangeMessageVisibility(ctx, &sqsVisibilityInput{
		QueueURL:          s.queueURL,
		ReceiptHandle:     rec.ReceiptHandle,
		VisibilityTimeout: int32(d / time.Second),
	})
	s.sink.IncrementCounter(metrics.SQSOperations, operationLabels("ChangeMessageVisibility", err))
	if err != nil {
		return fmt.Errorf("sqs change message visibility %s: %w", rec.ID, err)
	}
	return nil
}

func operationLabels(op string, err error) metrics.Labels {
	status := "success"
	if err != nil {
		status = "error"
	}
	return metrics.Labels{"operation": op, "status": status}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
