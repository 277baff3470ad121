package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidStoreType(t *testing.T) {
	_, err := New("bolt")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestNewRedisRequiresClient(t *testing.T) {
	_, err := New(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	store, err := New(StoreTypeMemory)
	require.NoError(t, err)

	t.Run("miss returns nil without error", func(t *testing.T) {
		val, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k1", []byte("v1"), 0))

		val, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), val)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k2", []byte("v2"), 0))
		require.NoError(t, store.Delete(ctx, "k2"))

		val, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("expired entry reads as miss", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k3", []byte("v3"), time.Millisecond))
		time.Sleep(5 * time.Millisecond)

		val, err := store.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("set after close fails", func(t *testing.T) {
		require.NoError(t, store.Close())
		assert.ErrorIs(t, store.Set(ctx, "k4", []byte("v4"), 0), ErrInvalidConfig)
	})
}

func TestMemoryStoreCustomTTL(t *testing.T) {
	ctx := context.Background()

	store, err := New(StoreTypeMemory, WithDefaultTTL(time.Millisecond))
	require.NoError(t, err)
	defer store.Close()

	// ttl<=0 falls back to the store default.
	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	time.Sleep(5 * time.Millisecond)

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	store, err := New(StoreTypeRedis, WithRedisClient(client))
	require.NoError(t, err)
	defer store.Close()

	t.Run("miss returns nil without error", func(t *testing.T) {
		val, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))

		val, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), val)
	})

	t.Run("ttl is applied", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k2", []byte("v2"), time.Minute))

		srv.FastForward(2 * time.Minute)

		val, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k3", []byte("v3"), time.Minute))
		require.NoError(t, store.Delete(ctx, "k3"))

		val, err := store.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Nil(t, val)
	})
}
