package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WebhookCache remembers processed provider events so redeliveries can be
// acknowledged without touching the database. The database row stays the
// source of truth; a miss here only means the slow path runs.
type WebhookCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewWebhookCache(client *redis.Client, ttl time.Duration) *WebhookCache {
	return &WebhookCache{client: client, ttl: ttl}
}

func webhookKey(gateway, eventID string) string {
	return "webhook_processed:" + gateway + ":" + eventID
}

func (c *WebhookCache) IsProcessed(ctx context.Context, gateway, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, webhookKey(gateway, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check webhook key: %w", err)
	}
	return n > 0, nil
}

func (c *WebhookCache) MarkProcessed(ctx context.Context, gateway, eventID string) error {
	if err := c.client.Set(ctx, webhookKey(gateway, eventID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("set webhook key: %w", err)
	}
	return nil
}
