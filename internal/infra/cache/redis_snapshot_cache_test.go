package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// REDIS_ADDR があるときだけ実Redisで確認する
func TestRedisSnapshotCache_SetGetInvalidate(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := fmt.Sprintf("test:cart:%d:", time.Now().UnixNano())
	c := NewRedisSnapshotCacheWithClient(client, prefix)
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Get(ctx, 1)
	assert.ErrorIs(t, err, repo.ErrCacheMiss)

	snap := model.CartSnapshot{ID: 3, UserID: 1, Items: []model.SnapshotItem{{ProductID: "p1", Quantity: 2}}, ItemCount: 2}
	gen, err := c.Generation(ctx, 1)
	require.NoError(t, err)
	stored, err := c.Set(ctx, 1, gen, snap, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap.ItemCount, got.ItemCount)
	assert.Equal(t, "p1", got.Items[0].ProductID)

	// 壊れた値はミス扱い
	require.NoError(t, client.Set(ctx, prefix+"2", "{broken", time.Minute).Err())
	_, err = c.Get(ctx, 2)
	assert.ErrorIs(t, err, repo.ErrCacheMiss)

	next, err := c.Invalidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, repo.ErrCacheMiss)

	// 読み始めの世代が古いので書かない
	stored, err = c.Set(ctx, 1, gen, snap, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, repo.ErrCacheMiss)

	require.NoError(t, client.Del(ctx, prefix+"2", prefix+"1:gen").Err())
}
