package cache

import (
	"context"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type snapshotEntry struct {
	snap      model.CartSnapshot
	expiresAt time.Time
}

// InMemorySnapshotCache は単一インスタンス・テスト用。
type InMemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[int64]snapshotEntry
	gens    map[int64]uint64
	now     func() time.Time
}

func NewInMemorySnapshotCache() *InMemorySnapshotCache {
	return &InMemorySnapshotCache{
		entries: make(map[int64]snapshotEntry),
		gens:    make(map[int64]uint64),
		now:     time.Now,
	}
}

func (c *InMemorySnapshotCache) Get(ctx context.Context, userID int64) (model.CartSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[userID]
	if !ok || !c.now().Before(e.expiresAt) {
		return model.CartSnapshot{}, repo.ErrCacheMiss
	}
	return e.snap.Clone(), nil
}

func (c *InMemorySnapshotCache) Generation(ctx context.Context, userID int64) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[userID], nil
}

func (c *InMemorySnapshotCache) Set(ctx context.Context, userID int64, gen uint64, snap model.CartSnapshot, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[userID] != gen {
		return false, nil
	}
	c.entries[userID] = snapshotEntry{snap: snap.Clone(), expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *InMemorySnapshotCache) Invalidate(ctx context.Context, userID int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	c.gens[userID]++
	return c.gens[userID], nil
}
