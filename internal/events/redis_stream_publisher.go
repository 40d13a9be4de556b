package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStreamPublisher appends lifecycle events to a Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisStreamPublisher builds a publisher writing to stream.
func NewRedisStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, logger: logger}
}

// Handle is an EventHandler.
func (p *RedisStreamPublisher) Handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	fields := map[string]any{
		"event_id":     event.ID,
		"event_type":   string(event.Type),
		"complaint_id": event.ComplaintID,
		"actor_type":   string(event.Actor.Type),
		"timestamp":    event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		"payload":      string(payload),
	}
	if event.Actor.OperatorID != nil {
		fields["operator_id"] = *event.Actor.OperatorID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	p.logger.Debug("appended event to stream", zap.String("stream", p.stream), zap.String("event_type", string(event.Type)))
	return nil
}
