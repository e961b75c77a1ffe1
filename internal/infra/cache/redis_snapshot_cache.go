package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotCache はユーザーごとのカートスナップショットをRedisに置く。
// 複数インスタンスで同じキャッシュを共有する構成用。
type RedisSnapshotCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSnapshotCache は接続確認してから返す
func NewRedisSnapshotCache(addr, password string, db int) (*RedisSnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisSnapshotCacheWithClient(client, ""), nil
}

// 既存クライアントを使う
func NewRedisSnapshotCacheWithClient(client *redis.Client, keyPrefix string) *RedisSnapshotCache {
	if keyPrefix == "" {
		keyPrefix = "cart:snapshot:"
	}
	return &RedisSnapshotCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisSnapshotCache) key(userID int64) string {
	return c.keyPrefix + strconv.FormatInt(userID, 10)
}

// 世代は期限なし（1ユーザー1個の整数）
func (c *RedisSnapshotCache) genKey(userID int64) string {
	return c.key(userID) + ":gen"
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID int64) (model.CartSnapshot, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CartSnapshot{}, repo.ErrCacheMiss
	}
	if err != nil {
		return model.CartSnapshot{}, fmt.Errorf("get cart snapshot: %w", err)
	}

	var snap model.CartSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// 壊れた値はミス扱いにして作り直させる
		return model.CartSnapshot{}, repo.ErrCacheMiss
	}
	return snap, nil
}

func (c *RedisSnapshotCache) Generation(ctx context.Context, userID int64) (uint64, error) {
	gen, err := parseGeneration(c.client.Get(ctx, c.genKey(userID)))
	if err != nil {
		return 0, fmt.Errorf("get cart generation: %w", err)
	}
	return gen, nil
}

// Set は世代キーを WATCH して、変わっていなければ書く
func (c *RedisSnapshotCache) Set(ctx context.Context, userID int64, gen uint64, snap model.CartSnapshot, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}

	stored := false
	genKey := c.genKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := parseGeneration(tx.Get(ctx, genKey))
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(userID), raw, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)

	// WATCH 中に Invalidate が入った
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("set cart snapshot: %w", err)
	}
	return stored, nil
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, userID int64) (uint64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, c.genKey(userID))
		pipe.Del(ctx, c.key(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalidate cart snapshot: %w", err)
	}
	return uint64(incr.Val()), nil
}

// 無ければ0
func parseGeneration(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}
