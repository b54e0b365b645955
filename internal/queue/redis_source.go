package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/envelope"
	"github.com/sungwon/notification-pipeline/internal/metrics"
)

var (
	_ Source             = (*RedisSource)(nil)
	_ VisibilityExtender = (*RedisSource)(nil)
)

// RedisSource consumes a Redis stream through a consumer group. Entries that
// stay pending longer than the visibility timeout are reclaimed with
// XAUTOCLAIM, which gives the stream the same redelivery semantics as SQS.
type RedisSource struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string
	block    time.Duration
	minIdle  time.Duration
	sink     metrics.Sink
	log      zerolog.Logger
}

// NewRedisSource creates a RedisSource configured from cfg.
func NewRedisSource(client redis.Cmdable, cfg Config, sink metrics.Sink, log zerolog.Logger) *RedisSource {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &RedisSource{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		block:    cfg.BlockTimeout,
		minIdle:  time.Duration(cfg.VisibilityTimeout) * time.Second,
		sink:     sink,
		log:      log,
	}
}

// CreateGroup creates the consumer group for the stream. If the stream or
// group already exists, the error is ignored.
func (s *RedisSource) CreateGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", s.group, s.stream, err)
	}
	return nil
}

// Receive returns up to limit entries: stale pending entries first, then new
// ones, blocking up to the configured block timeout for new entries.
func (s *RedisSource) Receive(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.minIdle,
		Start:    "0-0",
		Count:    int64(limit),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim on stream %s: %w", s.stream, err)
	}

	records := make([]Record, 0, limit)
	for _, xMsg := range claimed {
		rec := s.toRecord(xMsg)
		rec.ReceiveCount = s.deliveryCount(ctx, xMsg.ID)
		records = append(records, rec)
	}

	if remaining := limit - len(records); remaining > 0 {
		block := s.block
		if len(records) > 0 {
			block = -1 // do not wait when reclaimed entries are already in hand
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    int64(remaining),
			Block:    block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if len(records) > 0 {
				s.log.Warn().Err(err).Str("stream", s.stream).Msg("xreadgroup failed, returning reclaimed entries")
				return records, nil
			}
			return nil, fmt.Errorf("xreadgroup on stream %s: %w", s.stream, err)
		}
		for _, stream := range streams {
			for _, xMsg := range stream.Messages {
				rec := s.toRecord(xMsg)
				rec.ReceiveCount = 1
				records = append(records, rec)
			}
		}
	}

	s.sink.SetGauge(metrics.SQSMessagesReceived, float64(len(records)), nil)
	return records, nil
}

// Ack acknowledges the entry in the consumer group and removes it from the
// stream.
func (s *RedisSource) Ack(ctx context.Context, rec Record) error {
	if err := s.client.XAck(ctx, s.stream, s.group, rec.ID).Err(); err != nil {
		return fmt.Errorf("xack message %s on stream %s: %w", rec.ID, s.stream, err)
	}
	if err := s.client.XDel(ctx, s.stream, rec.ID).Err(); err != nil {
		return fmt.Errorf("xdel message %s on stream %s: %w", rec.ID, s.stream, err)
	}
	return nil
}

// ExtendVisibility re-claims the pending entry for this consumer, which
// resets its idle time so XAUTOCLAIM does not hand it out again. JUSTID
// leaves the delivery count unchanged. The stream has no per-entry timeout,
// so d is not used.
func (s *RedisSource) ExtendVisibility(ctx context.Context, rec Record, _ time.Duration) error {
	err := s.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		Messages: []string{rec.ID},
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("xclaim message %s on stream %s: %w", rec.ID, s.stream, err)
	}
	return nil
}

func (s *RedisSource) toRecord(xMsg redis.XMessage) Record {
	rec := Record{ID: xMsg.ID, ReceiptHandle: xMsg.ID}
	rec.Body, _ = xMsg.Values[fieldBody].(string)

	if raw, ok := xMsg.Values[fieldAttributes].(string); ok && raw != "" {
		var attrs map[string]string
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			s.log.Warn().Err(err).Str("entry_id", xMsg.ID).Msg("ignoring malformed stream attributes")
		} else {
			rec.Attributes = make(map[string]envelope.Attribute, len(attrs))
			for k, v := range attrs {
				rec.Attributes[k] = envelope.Attribute{Type: "String", Value: v}
			}
		}
	}

	// Entry IDs are "<unix-ms>-<seq>".
	if ms, _, ok := strings.Cut(xMsg.ID, "-"); ok {
		rec.SentAt = sentAt(ms)
	}
	return rec
}

// deliveryCount returns how many times the group has delivered the entry,
// defaulting to 1 when the pending list cannot be read.
func (s *RedisSource) deliveryCount(ctx context.Context, id string) int {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return max1(int(pending[0].RetryCount))
}
