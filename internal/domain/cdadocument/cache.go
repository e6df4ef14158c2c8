package cdadocument

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const textKeyPrefix = "cda:text:"

// RedisTextCache is a Redis-backed TextCache. Entries expire after ttl and
// are dropped by the registry on every write to the document.
type RedisTextCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisTextCache(client redis.Cmdable, ttl time.Duration) *RedisTextCache {
	return &RedisTextCache{client: client, ttl: ttl}
}

func textKey(id uuid.UUID) string { return textKeyPrefix + id.String() }

func (c *RedisTextCache) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, textKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisTextCache) Set(ctx context.Context, id uuid.UUID, text []byte) error {
	return c.client.Set(ctx, textKey(id), text, c.ttl).Err()
}

func (c *RedisTextCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, textKey(id)).Err()
}
