package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCheck pings a Redis backend used by the cache or rate-limit counter.
func RedisCheck(name string, client *redis.Client) Check {
	return NewCheckFunc(name, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}
