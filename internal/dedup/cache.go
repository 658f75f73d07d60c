// Package dedup caches natural keys of already-ingested events so the
// reconciler can skip repository existence checks for keys it has seen
// recently. The cache is strictly a read-through optimization: misses and
// errors fall back to the repository, and the event_id unique index remains
// the authoritative duplicate guard.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyCache records natural keys that have been ingested.
type KeyCache interface {
	// Seen reports whether the key was recorded recently. Errors degrade
	// to "not seen" at the call site.
	Seen(ctx context.Context, key string) (bool, error)

	// Add records the key.
	Add(ctx context.Context, key string) error

	Close() error
}

// RedisCache implements KeyCache on Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, "dedup:"+key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Add(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, "dedup:"+key, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("dedup store failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache is used when the dedup cache is disabled; every key reads as
// unseen so all checks go to the repository.
type NoopCache struct{}

func (NoopCache) Seen(ctx context.Context, key string) (bool, error) { return false, nil }
func (NoopCache) Add(ctx context.Context, key string) error          { return nil }
func (NoopCache) Close() error                                       { return nil }
