// Package retry runs an operation with bounded, classified, in-process
// retries. It sits underneath the queue's own redelivery: exhausting the
// local budget never acks or deletes anything, it only reports failure to
// the caller, which decides whether the queue should redeliver.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/metrics"
)

// ErrRetryExhausted matches every *ExhaustedError via errors.Is.
var ErrRetryExhausted = errors.New("retry exhausted")

// Config is the local backoff policy.
type Config struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Factor         float64       `mapstructure:"factor"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

// DefaultConfig returns the default policy: 3 attempts, 1s base delay,
// 30s cap, factor 2, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Factor:         2,
		JitterFraction: 0.1,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Factor < 1 {
		c.Factor = d.Factor
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = d.JitterFraction
	}
	return c
}

// Backoff returns the delay before the attempt following attempt, before
// jitter is applied: min(base * factor^(attempt-1), max).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.BaseDelay) * math.Pow(c.Factor, float64(attempt-1))
	if d > float64(c.MaxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// TerminalError is returned when a failure is not worth retrying.
type TerminalError struct {
	Attempts   int
	Classified errclass.Classified
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("non-retryable %s error after %d attempt(s): %s",
		e.Classified.Category, e.Attempts, e.Classified.Message())
}

func (e *TerminalError) Unwrap() error { return e.Classified.Err }

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     errclass.Classified
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s): %s", e.Attempts, e.Last.Message())
}

// Unwrap exposes both the sentinel and the last underlying error.
func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetryExhausted, e.Last.Err} }

// Executor runs operations under a retry policy.
type Executor struct {
	classifier *errclass.Classifier
	sink       metrics.Sink
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	rand       func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the context-aware sleep used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithRand replaces the [0,1) random source used for jitter.
func WithRand(fn func() float64) Option {
	return func(e *Executor) { e.rand = fn }
}

// NewExecutor creates an Executor. A nil sink discards metrics.
func NewExecutor(classifier *errclass.Classifier, sink metrics.Sink, logger zerolog.Logger, opts ...Option) *Executor {
	if classifier == nil {
		classifier = errclass.NewClassifier()
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	e := &Executor{
		classifier: classifier,
		sink:       sink,
		logger:     logger,
		sleep:      sleepCtx,
		rand:       rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delay returns the jittered delay after attempt:
// Backoff(attempt) * (1 + rand*JitterFraction).
func (e *Executor) Delay(cfg Config, attempt int) time.Duration {
	base := cfg.Backoff(attempt)
	return time.Duration(float64(base) * (1 + e.rand()*cfg.JitterFraction))
}

// Execute is Do for operations without a result value.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error, initial errclass.Classified, cfg Config) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, initial, cfg)
	return err
}

// Do runs op up to cfg.MaxRetries times. initial is the classification of
// the failure that led here; when it is not retryable op is never invoked.
// Each new failure is re-classified and stops the loop when it is not
// retryable or is critical.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), initial errclass.Classified, cfg Config) (T, error) {
	var zero T

	if !initial.Retryable {
		return zero, &TerminalError{Attempts: 0, Classified: initial}
	}

	last := initial
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		ectx := initial.Context
		ectx.RetryCount = attempt
		ectx.Timestamp = time.Time{}
		last = e.classifier.Classify(err, ectx)

		if !last.Retryable || last.Severity == errclass.SeverityCritical {
			return zero, &TerminalError{Attempts: attempt, Classified: last}
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := e.Delay(cfg, attempt)
		e.logger.Warn().Err(err).
			Str("message_id", ectx.MessageID).
			Str("category", string(last.Category)).
			Int("attempt", attempt).
			Int("max_retries", cfg.MaxRetries).
			Dur("backoff", delay).
			Msg("operation failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return zero, &TerminalError{
				Attempts:   attempt,
				Classified: e.classifier.Classify(err, ectx),
			}
		}
		e.sink.IncrementCounter(metrics.Retries, nil)
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxRetries, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
