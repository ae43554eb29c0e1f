package repositories

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pubkytree/internal/models"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb, "pubkytree:")

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Prefixed Keys", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte("v")))

		raw, err := mr.Get("pubkytree:k")
		require.NoError(t, err)
		assert.Equal(t, "v", raw)

		got, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), got)

		require.NoError(t, store.Delete(ctx, "k"))
		assert.False(t, mr.Exists("pubkytree:k"))
	})

	t.Run("LocalCache", func(t *testing.T) {
		cache := NewLocalCache(store, nil)
		links := models.LinkList{{ID: "1", Title: "A", URL: "https://a.com"}}

		require.NoError(t, cache.SaveLinks(ctx, links))
		got, err := cache.Links(ctx)
		require.NoError(t, err)
		assert.Equal(t, links, got)
	})

	t.Run("Connection Failure", func(t *testing.T) {
		client, err := NewRedisClient(ctx, mr.Addr(), 0)
		require.NoError(t, err)
		client.Close()

		bad := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
		_, _, err = bad.Get(ctx, "k")
		assert.Error(t, err)
	})
}
