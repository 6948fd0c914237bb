package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "relay:inbound:"

// RedisDeduper remembers inbound WhatsApp message ids for a TTL so a
// redelivery after reconnect is not answered twice.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+messageID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", messageID, err)
	}
	return ok, nil
}
