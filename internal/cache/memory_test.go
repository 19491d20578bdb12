package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolekits/core/internal/cache"
)

func newMemory(t *testing.T, ttl time.Duration) cache.Client {
	t.Helper()
	c, err := cache.New(cache.Config{Driver: "memory", DefaultTTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemory_SetGetDelete(t *testing.T) {
	c := newMemory(t, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "nope")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// delete de algo inexistente no es error
	require.NoError(t, c.Delete(ctx, "k"))
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := newMemory(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "efimero", "v", 30*time.Millisecond))

	_, err := c.Get(ctx, "efimero")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "efimero")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestMemory_Ping(t *testing.T) {
	c := newMemory(t, time.Minute)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNew_FallsBackToMemory(t *testing.T) {
	for _, driver := range []string{"", "memory", "memcached"} {
		c, err := cache.New(cache.Config{Driver: driver})
		require.NoError(t, err, "driver %q", driver)
		assert.NoError(t, c.Ping(context.Background()))
		_ = c.Close()
	}
}
