package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// BreakerConfig tunes the circuit breaker placed in front of a provider.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:             true,
		ConsecutiveFailures: 5,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// Breaker wraps a Provider in a circuit breaker. Only transient failures
// count towards tripping it; permanent rejections pass through.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[*DeliveryResult]
}

// WithBreaker wraps p in a circuit breaker configured by cfg.
func WithBreaker(p Provider, cfg BreakerConfig, log zerolog.Logger) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = d.ConsecutiveFailures
	}
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxHalfOpenRequests == 0 {
		cfg.MaxHalfOpenRequests = d.MaxHalfOpenRequests
	}

	cb := gobreaker.NewCircuitBreaker[*DeliveryResult](gobreaker.Settings{
		Name:        p.GetName(),
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit breaker state changed")
		},
	})
	return &Breaker{next: p, cb: cb}
}

func (b *Breaker) GetName() string { return b.next.GetName() }

// Send delivers through the wrapped provider unless the breaker is open.
// Open-breaker rejections are external service failures, so they are retried.
func (b *Breaker) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	res, err := b.cb.Execute(func() (*DeliveryResult, error) {
		return b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errclass.Wrap(errclass.KindExternalService, err, b.next.GetName()+": circuit breaker")
	}
	return res, err
}

// HealthCheck reports an open breaker as unhealthy without probing.
func (b *Breaker) HealthCheck(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return errclass.Wrap(errclass.KindExternalService, gobreaker.ErrOpenState, b.next.GetName()+": circuit breaker")
	}
	return b.next.HealthCheck(ctx)
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
