package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr, client
}

func TestClean_DropsTenantNamespaceOnly(t *testing.T) {
	c, mr, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("cache:acme:res.user:1", "cached"))
	require.NoError(t, mr.Set("cache:acme:res.group:2", "cached"))
	require.NoError(t, mr.Set("cache:globex:res.user:1", "cached"))

	require.NoError(t, c.Clean(ctx, "acme"))

	assert.False(t, mr.Exists("cache:acme:res.user:1"))
	assert.False(t, mr.Exists("cache:acme:res.group:2"))
	assert.True(t, mr.Exists("cache:globex:res.user:1"))
}

func TestInvalidation_BumpsGeneration(t *testing.T) {
	c, _, _ := setupCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, c.Clean(ctx, "acme"))
	require.NoError(t, c.Reset(ctx, "acme"))

	gen, err = c.Generation(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
}

func TestReset_EmptyNamespace(t *testing.T) {
	c, _, _ := setupCache(t)
	assert.NoError(t, c.Reset(context.Background(), "acme"))
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	assert.NoError(t, c.Clean(ctx, "acme"))
	assert.NoError(t, c.Reset(ctx, "acme"))

	c = New(nil)
	assert.NoError(t, c.Clean(ctx, "acme"))

	gen, err := c.Generation(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)
}
