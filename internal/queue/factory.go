package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/metrics"
)

// ErrUnknownType is returned by the factories for an unsupported backend.
var ErrUnknownType = errors.New("unknown queue type")

// NewSource creates the Source selected by cfg.Type. For Redis the consumer
// group is created if it does not exist.
func NewSource(ctx context.Context, cfg Config, sink metrics.Sink, log zerolog.Logger) (Source, error) {
	cfg = cfg.withDefaults()

	switch cfg.Type {
	case "sqs":
		if cfg.URL == "" {
			return nil, errors.New("queue url is required for sqs")
		}
		client, err := newAWSSQSClient(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return NewSQSSource(client, cfg.URL, cfg, sink, log), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		src := NewRedisSource(client, cfg, sink, log)
		if err := src.CreateGroup(ctx); err != nil {
			return nil, err
		}
		return src, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// NewPublisher creates the dead-letter Publisher selected by cfg.Type.
func NewPublisher(ctx context.Context, cfg DLQConfig, sink metrics.Sink, log zerolog.Logger) (Publisher, error) {
	switch cfg.Type {
	case "sqs", "":
		if cfg.URL == "" {
			return nil, errors.New("dlq url is required for sqs")
		}
		client, err := newAWSSQSClient(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return NewSQSPublisher(client, cfg.URL, sink, log), nil

	case "redis":
		stream := cfg.Stream
		if stream == "" {
			stream = DefaultDLQConfig().Stream
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisPublisher(client, stream), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// NewSourcePublisher creates a Publisher that writes to the source queue
// described by cfg. The enqueue CLI uses it to inject test messages.
func NewSourcePublisher(ctx context.Context, cfg Config, log zerolog.Logger) (Publisher, error) {
	cfg = cfg.withDefaults()
	return NewPublisher(ctx, DLQConfig{
		Type:          cfg.Type,
		URL:           cfg.URL,
		Region:        cfg.Region,
		Endpoint:      cfg.Endpoint,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Stream:        cfg.Stream,
	}, nil, log)
}
