package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyCache_ServesRepeatsFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	next := memory.NewResolver(map[string]map[string]string{
		"lodash@4.17.21": {"/node_modules/lodash/index.js": "module.exports = {}"},
	})
	cache := redis.NewDependencyCache(client, next, redis.WithCacheTTL(time.Hour))
	ctx := context.Background()

	first, err := cache.Resolve(ctx, "lodash", "4.17.21")
	require.NoError(t, err)
	second, err := cache.Resolve(ctx, "lodash", "4.17.21")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.Calls())
	assert.True(t, mr.Exists("stepwise:deps:lodash@4.17.21"))

	mr.FastForward(2 * time.Hour)
	_, err = cache.Resolve(ctx, "lodash", "4.17.21")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Calls())
}

func TestDependencyCache_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	next := memory.NewResolver(nil)
	cache := redis.NewDependencyCache(client, next)

	_, err := cache.Resolve(context.Background(), "missing", "1.0.0")
	assert.Error(t, err)
	assert.False(t, mr.Exists("stepwise:deps:missing@1.0.0"))
}
