package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "revoked:"

// RedisCache remembers revoked jtis in Redis so hot tokens skip the database.
// It only ever stores positive answers; a miss is not proof of validity.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// MarkRevoked stores the jti for ttl, which should cover the token's remaining lifetime.
func (c *RedisCache) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("jti cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// IsRevoked reports whether the jti is cached as revoked.
func (c *RedisCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, errors.New("jti cannot be empty")
	}
	n, err := c.client.Exists(ctx, cacheKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}
