package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/envelope"
	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/notification"
	"github.com/sungwon/notification-pipeline/internal/retry"
)

// Status is the final state of one processed record.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusDropped      Status = "dropped"
	StatusDeadLettered Status = "dead_lettered"
	StatusRetry        Status = "retry"
)

// Processing stages recorded under message_processing_duration.
const (
	stageDecode   = "decode"
	stageValidate = "validate"
	stageDispatch = "dispatch"
	stageRetry    = "retry"
	stageDLQ      = "dlq"
	stageTotal    = "total"
)

// Attribute names read from incoming records.
const (
	AttrCorrelationID = "correlationId"
	AttrRequestID     = "requestId"
)

// Outcome tells the caller what to do with a processed record. Ack and
// ShouldRetry are never both true; when both are false the record is left
// for the queue's own redelivery.
type Outcome struct {
	Status      Status
	Ack         bool
	ShouldRetry bool
	Classified  *errclass.Classified
	Result      *notification.Result
}

// DeadLetterer is the dead-letter path used by the Processor.
type DeadLetterer interface {
	Send(ctx context.Context, dl DeadLetter) bool
}

// ProcessorConfig bounds the two retry layers. Retry supplies the local
// backoff timings; the number of local retries always comes from the error
// classification. RetryCap, when positive, lowers that number for every
// category. MaxReceiveCount is how many queue deliveries a message gets
// before local exhaustion dead-letters it instead of leaving it for
// redelivery.
type ProcessorConfig struct {
	Retry           retry.Config
	RetryCap        int
	MaxReceiveCount int
}

// Processor drives one record through decode, validate, dispatch, and the
// retry or dead-letter decision. It never acknowledges records itself.
type Processor struct {
	dispatcher Dispatcher
	dlq        DeadLetterer
	executor   *retry.Executor
	classifier *errclass.Classifier
	cfg        ProcessorConfig
	sink       metrics.Sink
	log        zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(
	dispatcher Dispatcher,
	dlq DeadLetterer,
	executor *retry.Executor,
	classifier *errclass.Classifier,
	cfg ProcessorConfig,
	sink metrics.Sink,
	log zerolog.Logger,
) *Processor {
	if classifier == nil {
		classifier = errclass.NewClassifier()
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	if executor == nil {
		executor = retry.NewExecutor(classifier, sink, log)
	}
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = 1
	}
	return &Processor{
		dispatcher: dispatcher,
		dlq:        dlq,
		executor:   executor,
		classifier: classifier,
		cfg:        cfg,
		sink:       sink,
		log:        log,
	}
}

// Process runs one record through the pipeline and reports the outcome.
func (p *Processor) Process(ctx context.Context, rec Record) Outcome {
	start := time.Now()
	defer p.timing(stageTotal, start)

	correlationID := attr(rec, AttrCorrelationID)
	if correlationID == "" {
		correlationID = logger.NewCorrelationID()
	}
	requestID := attr(rec, AttrRequestID)
	if requestID == "" {
		requestID = rec.ID
	}

	log := p.log.With().
		Str("message_id", rec.ID).
		Int("receive_count", rec.ReceiveCount).
		Logger()
	ctx = logger.WithLogger(ctx, log)
	ctx = logger.WithCorrelationID(ctx, correlationID)
	ctx = logger.WithRequestID(ctx, requestID)
	log = logger.FromContext(ctx)

	ectx := errclass.Context{
		MessageID:  rec.ID,
		RetryCount: max(rec.ReceiveCount-1, 0),
		Metadata:   map[string]string{"correlationId": correlationID},
	}

	stageStart := time.Now()
	decoded, err := envelope.Decode(rec.Body, rec.Attributes)
	p.timing(stageDecode, stageStart)
	if err != nil {
		c := p.classifier.Classify(err, ectx)
		log.Warn().Err(err).
			Str("category", string(c.Category)).
			Msg("failed to decode message body")
		return p.fail(ctx, log, rec, c)
	}

	stageStart = time.Now()
	payload, err := notification.Validate(decoded.Payload)
	p.timing(stageValidate, stageStart)
	if err != nil {
		log.Warn().Err(err).
			Str("category", "invalid-payload").
			Interface("attributes", rec.AttributeSnapshot()).
			Str("body_preview", envelope.Preview(rec.Body)).
			Bool("envelope_detected", decoded.EnvelopeDetected).
			Msg("dropping message with invalid payload")
		p.processed(metrics.StatusDropped)
		return Outcome{Status: StatusDropped, Ack: true}
	}

	ectx.UserID = payload.UserID
	ectx.EventType = string(payload.NotificationType)
	log = log.With().
		Str("user_id", payload.UserID).
		Str("event_type", string(payload.NotificationType)).
		Str("transporter", string(payload.TransporterType)).
		Logger()
	ctx = logger.WithLogger(ctx, log)

	stageStart = time.Now()
	res := p.dispatcher.Dispatch(ctx, payload)
	p.timing(stageDispatch, stageStart)
	if res.Success {
		p.processed(metrics.StatusSuccess)
		log.Info().Str("provider_message_id", res.MessageID).Msg("notification delivered")
		return Outcome{Status: StatusSuccess, Ack: true, Result: res}
	}

	c := p.classifier.Classify(resultError(res), ectx)
	log.Warn().Err(c.Err).
		Str("category", string(c.Category)).
		Str("severity", string(c.Severity)).
		Bool("retryable", c.Retryable).
		Msg("notification dispatch failed")

	if !c.Retryable {
		out := p.fail(ctx, log, rec, c)
		out.Result = res
		return out
	}

	rcfg := p.retryConfig(c)
	stageStart = time.Now()
	res2, err := retry.Do(ctx, p.executor, func(ctx context.Context) (*notification.Result, error) {
		r := p.dispatcher.Dispatch(ctx, payload)
		if r.Success {
			return r, nil
		}
		return r, resultError(r)
	}, c, rcfg)
	p.timing(stageRetry, stageStart)
	if err == nil {
		p.processed(metrics.StatusSuccess)
		log.Info().Str("provider_message_id", res2.MessageID).Msg("notification delivered after retry")
		return Outcome{Status: StatusSuccess, Ack: true, Result: res2}
	}

	final := classifiedFrom(err, c)
	out := p.fail(ctx, log, rec, final)
	if res2 != nil {
		out.Result = res2
	} else {
		out.Result = res
	}
	return out
}

// fail decides between leaving a failed record for queue redelivery and
// dead-lettering it.
func (p *Processor) fail(ctx context.Context, log zerolog.Logger, rec Record, c errclass.Classified) Outcome {
	p.processed(metrics.StatusFailed)

	// Shutting down: leave the record for another consumer.
	if ctx.Err() != nil {
		log.Warn().Err(ctx.Err()).Msg("processing interrupted, leaving message for redelivery")
		return Outcome{Status: StatusRetry, ShouldRetry: true, Classified: &c}
	}

	if c.Retryable && rec.ReceiveCount < p.cfg.MaxReceiveCount {
		log.Warn().
			Str("category", string(c.Category)).
			Int("max_receive_count", p.cfg.MaxReceiveCount).
			Msg("local retries exhausted, leaving message for queue redelivery")
		return Outcome{Status: StatusRetry, ShouldRetry: true, Classified: &c}
	}

	if c.Severity == errclass.SeverityCritical {
		log.Error().Err(c.Err).
			Bool("critical", true).
			Str("category", string(c.Category)).
			Msg("critical failure processing message")
	}

	stageStart := time.Now()
	sent := p.dlq.Send(ctx, DeadLetter{
		MessageID:  rec.ID,
		Body:       rec.Body,
		Attributes: rec.AttributeSnapshot(),
		Classified: c,
		RetryCount: c.Context.RetryCount,
	})
	p.timing(stageDLQ, stageStart)
	if !sent {
		// Leave the record un-acked; the queue's redrive policy is the
		// fallback when the dead-letter destination is unreachable.
		return Outcome{Status: StatusRetry, ShouldRetry: true, Classified: &c}
	}
	return Outcome{Status: StatusDeadLettered, Ack: true, Classified: &c}
}

// retryConfig sets the local retry budget from the classification, lowered
// to RetryCap when one is set. Retry.MaxRetries plays no part.
func (p *Processor) retryConfig(c errclass.Classified) retry.Config {
	cfg := p.cfg.Retry.WithDefaults()
	cfg.MaxRetries = c.MaxRetries
	if p.cfg.RetryCap > 0 && p.cfg.RetryCap < cfg.MaxRetries {
		cfg.MaxRetries = p.cfg.RetryCap
	}
	return cfg
}

func (p *Processor) processed(status string) {
	p.sink.IncrementCounter(metrics.MessagesProcessed, metrics.Labels{"status": status})
}

func (p *Processor) timing(stage string, start time.Time) {
	p.sink.RecordTiming(metrics.MessageProcessingDuration, time.Since(start), metrics.Labels{"stage": stage})
}

// classifiedFrom extracts the final classification from a retry error. The
// retry count adds the local attempts to the earlier queue deliveries.
func classifiedFrom(err error, fallback errclass.Classified) errclass.Classified {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		c := ex.Last
		c.Context.RetryCount = fallback.Context.RetryCount + ex.Attempts
		return c
	}
	var term *retry.TerminalError
	if errors.As(err, &term) {
		c := term.Classified
		c.Context.RetryCount = fallback.Context.RetryCount + term.Attempts
		return c
	}
	fallback.Err = err
	return fallback
}

// resultError returns the error carried by a failed result.
func resultError(res *notification.Result) error {
	if res.Error != nil {
		return res.Error
	}
	return fmt.Errorf("handler reported failure without an error")
}

func attr(rec Record, name string) string {
	return rec.Attributes[name].Value
}
