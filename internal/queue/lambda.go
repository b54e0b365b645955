package queue

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/envelope"
)

// RecordFromSQSEvent converts a Lambda SQS event record into a Record.
func RecordFromSQSEvent(m events.SQSMessage) Record {
	rec := Record{
		ID:            m.MessageId,
		ReceiptHandle: m.ReceiptHandle,
		Body:          m.Body,
		ReceiveCount:  receiveCount(m.Attributes["ApproximateReceiveCount"]),
		SentAt:        sentAt(m.Attributes["SentTimestamp"]),
	}
	if len(m.MessageAttributes) > 0 {
		rec.Attributes = make(map[string]envelope.Attribute, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			if v.StringValue == nil {
				continue
			}
			rec.Attributes[k] = envelope.Attribute{Type: v.DataType, Value: *v.StringValue}
		}
	}
	return rec
}

// LambdaHandler processes an SQS event batch with partial batch responses.
// Records that were not acknowledged are reported in BatchItemFailures so
// SQS redelivers only those.
type LambdaHandler struct {
	processor RecordProcessor
	log       zerolog.Logger
}

// NewLambdaHandler creates a LambdaHandler around processor.
func NewLambdaHandler(processor RecordProcessor, log zerolog.Logger) *LambdaHandler {
	return &LambdaHandler{processor: processor, log: log}
}

// Handle implements the aws-lambda-go SQS handler signature.
func (h *LambdaHandler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, m := range event.Records {
		out := h.processor.Process(ctx, RecordFromSQSEvent(m))
		if out.Ack {
			continue
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: m.MessageId})
	}

	h.log.Info().
		Int("records", len(event.Records)).
		Int("failures", len(resp.BatchItemFailures)).
		Msg("sqs batch processed")
	return resp, nil
}
