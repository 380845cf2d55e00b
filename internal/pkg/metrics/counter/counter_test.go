package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TourMarket/internal/pkg/env"
)

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       12,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestHashCountsPerField(t *testing.T) {
	client := testRedisClient(t)
	h := NewHash(client, WebhookOutcomesKey)
	ctx := context.Background()

	require.NoError(t, h.Incr(ctx, "activated"))
	require.NoError(t, h.Incr(ctx, "activated"))
	require.NoError(t, h.Incr(ctx, "ignored_status"))
	require.NoError(t, client.HSet(ctx, WebhookOutcomesKey, "broken", "x").Err())

	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"activated": 2, "ignored_status": 1}, snap)

	require.NoError(t, h.Reset(ctx))
	snap, err = h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}
