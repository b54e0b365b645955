package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Publisher = (*RedisPublisher)(nil)

// Redis stream entry fields.
const (
	fieldBody       = "body"
	fieldAttributes = "attributes"
)

// RedisPublisher appends messages to a Redis stream using XADD.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
}

// NewRedisPublisher creates a new RedisPublisher writing to stream.
func NewRedisPublisher(client redis.Cmdable, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream}
}

// Publish adds body and its attributes to the stream. It returns the Redis
// stream entry ID.
func (p *RedisPublisher) Publish(ctx context.Context, body string, attrs map[string]string) (string, error) {
	values := map[string]interface{}{
		fieldBody: body,
	}
	if len(attrs) > 0 {
		data, err := json.Marshal(attrs)
		if err != nil {
			return "", fmt.Errorf("marshal attributes: %w", err)
		}
		values[fieldAttributes] = string(data)
	}

	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to stream %s: %w", p.stream, err)
	}
	return entryID, nil
}
