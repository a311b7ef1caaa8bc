package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "cache:"    // tenant namespace: cache:{tenant}:*
	generationPrefix = "cachegen:" // generation counter: cachegen:{tenant}
)

// Cache is the tenant-scoped invalidation layer. Clean runs before a
// transaction opens and Reset after it ends; both drop the tenant's key
// namespace and bump its generation counter so other processes sharing
// the cache notice the change. A nil client turns every operation into a
// no-op, for deployments without redis.
type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Clean invalidates the tenant's cached entries before a transaction
// starts, so the request never reads entries left by a prior process.
func (c *Cache) Clean(ctx context.Context, tenant string) error {
	return c.invalidate(ctx, tenant)
}

// Reset invalidates the tenant's cached entries after a transaction ends,
// propagating this request's writes to other workers.
func (c *Cache) Reset(ctx context.Context, tenant string) error {
	return c.invalidate(ctx, tenant)
}

// Generation returns the tenant's current invalidation counter.
func (c *Cache) Generation(ctx context.Context, tenant string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, generationPrefix+tenant).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) invalidate(ctx context.Context, tenant string) error {
	if c == nil || c.client == nil {
		return nil
	}

	pattern := fmt.Sprintf("%s%s:*", keyPrefix, tenant)
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to scan cache keys for %s: %w", tenant, err)
	}

	pipe := c.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Incr(ctx, generationPrefix+tenant)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cache for %s: %w", tenant, err)
	}
	return nil
}
