package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const discardKeyPrefix = "complaints:discarded:"

// DiscardCache remembers inbound messages classified as non-complaints so they
// are not sent to the classifier on every poll.
type DiscardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDiscardCache builds a cache; a nil client yields a cache that never hits.
func NewDiscardCache(client *redis.Client, ttl time.Duration) *DiscardCache {
	return &DiscardCache{client: client, ttl: ttl}
}

// Seen reports whether sourceMessageID was discarded before.
func (c *DiscardCache) Seen(ctx context.Context, sourceMessageID string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, discardKeyPrefix+sourceMessageID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember marks sourceMessageID as discarded.
func (c *DiscardCache) Remember(ctx context.Context, sourceMessageID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, discardKeyPrefix+sourceMessageID, time.Now().UTC().Format(time.RFC3339), c.ttl).Err()
}
