package watcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims an idempotency key. Acquire returns true exactly once per
// key within the retention window, which bounds synthesis to one notification
// per domain event even when the feed redelivers.
type Deduper interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

const dedupTTL = 24 * time.Hour

// RedisDeduper implements Deduper with SETNX and a TTL.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, "notif:dedup:"+key, "1", dedupTTL).Result()
}
