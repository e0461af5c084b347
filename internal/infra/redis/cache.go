package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/floodguard/internal/infra/cache"
)

// Cache is a cache.Store backed by Redis string keys holding JSON.
type Cache[V any] struct {
	client *Client
	name   string
	ttl    time.Duration
}

var _ cache.Store[int] = (*Cache[int])(nil)

// NewCache creates a named cache. A ttl of zero keeps entries forever.
func NewCache[V any](client *Client, name string, ttl time.Duration) *Cache[V] {
	return &Cache[V]{client: client, name: name, ttl: ttl}
}

func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var value V
	raw, err := c.client.rdb.Get(ctx, c.client.cacheKey(c.name, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("get failed: %w", err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s/%s: %w", c.name, key, err)
	}
	return value, true, nil
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.name, key, err)
	}
	if err := c.client.rdb.Set(ctx, c.client.cacheKey(c.name, key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	return c.client.rdb.Del(ctx, c.client.cacheKey(c.name, key)).Err()
}
