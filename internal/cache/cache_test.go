package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/cache"
)

func backends(t *testing.T) map[string]func() (cache.Client, *miniredis.Miniredis) {
	return map[string]func() (cache.Client, *miniredis.Miniredis){
		"memory": func() (cache.Client, *miniredis.Miniredis) {
			return cache.NewMemory("pg"), nil
		},
		"redis": func() (cache.Client, *miniredis.Miniredis) {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return cache.NewRedis(rdb, "pg"), mr
		},
	}
}

func TestClient_GetSetDelete(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := mk()
			defer c.Close()
			ctx := context.Background()

			_, err := c.Get(ctx, "missing")
			assert.True(t, cache.IsNotFound(err))

			require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
			v, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", v)

			require.NoError(t, c.Delete(ctx, "k"))
			_, err = c.Get(ctx, "k")
			assert.ErrorIs(t, err, cache.ErrNotFound)
			require.NoError(t, c.Delete(ctx, "k"))
			require.NoError(t, c.Ping(ctx))
		})
	}
}

func TestClient_TakeIsSingleUse(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c, _ := mk()
			defer c.Close()
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, "token", "payload", time.Minute))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if v, err := c.Take(ctx, "token"); err == nil {
						assert.Equal(t, "payload", v)
						wins.Add(1)
					} else {
						assert.True(t, cache.IsNotFound(err))
					}
				}()
			}
			wg.Wait()
			assert.EqualValues(t, 1, wins.Load())
		})
	}
}

func TestRedisClient_TTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedis(rdb, "pg")
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.True(t, mr.Exists("pg:k"))

	mr.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "k")
	assert.True(t, cache.IsNotFound(err))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "redis", st.Driver)
}

func TestMemoryClient_TTL(t *testing.T) {
	c := cache.NewMemory("")
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.True(t, cache.IsNotFound(err))
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := cache.New(context.Background(), cache.Config{Driver: "memcached"})
	require.Error(t, err)

	c, err := cache.New(context.Background(), cache.Config{})
	require.NoError(t, err)
	st, _ := c.Stats(context.Background())
	assert.Equal(t, "memory", st.Driver)
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(context.Background(), cache.Config{Driver: "redis", Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))
}
