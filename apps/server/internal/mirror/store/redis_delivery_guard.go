package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

const redisDeliveryPrefix = "s3mirror:delivery:"

// Compile-time check: *RedisDeliveryGuard implements mirror.DeliveryGuard.
var _ mirror.DeliveryGuard = (*RedisDeliveryGuard)(nil)

// RedisDeliveryGuard remembers delivery IDs in Redis, shared by every replica.
type RedisDeliveryGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeliveryGuard creates a guard whose keys expire after ttl.
func NewRedisDeliveryGuard(rdb *redis.Client, ttl time.Duration) *RedisDeliveryGuard {
	return &RedisDeliveryGuard{rdb: rdb, ttl: ttl}
}

// FirstDelivery claims id with SET NX and reports whether this call claimed it.
func (g *RedisDeliveryGuard) FirstDelivery(ctx context.Context, id string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, redisDeliveryPrefix+id, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %q: %w", id, err)
	}
	return ok, nil
}

// Release deletes the claim on id.
func (g *RedisDeliveryGuard) Release(ctx context.Context, id string) error {
	if err := g.rdb.Del(ctx, redisDeliveryPrefix+id).Err(); err != nil {
		return fmt.Errorf("release delivery %q: %w", id, err)
	}
	return nil
}
