package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuthzCache holds evaluated role sets. Entries are populated on the first
// check and removed by Invalidate after every role-affecting change.
type AuthzCache interface {
	Get(ctx context.Context, userID uint) (RoleSet, bool)
	Set(ctx context.Context, userID uint, roles RoleSet)
	Invalidate(ctx context.Context, userID uint) error
}

const cacheKeyPrefix = "authz:roles:"

func cacheKey(userID uint) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, userID)
}

// RedisCache shares role sets across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID uint) (RoleSet, bool) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		return RoleSet{}, false
	}
	var set RoleSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return RoleSet{}, false
	}
	return set, true
}

func (c *RedisCache) Set(ctx context.Context, userID uint, roles RoleSet) {
	raw, err := json.Marshal(roles)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(userID), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID uint) error {
	err := c.client.Del(ctx, cacheKey(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

type memoryEntry struct {
	roles   RoleSet
	expires time.Time
}

// MemoryCache is a per-process cache for single instance deployments and
// tests.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{ttl: ttl, entries: map[uint]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, userID uint) (RoleSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return RoleSet{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, userID)
		return RoleSet{}, false
	}
	return e.roles, true
}

func (c *MemoryCache) Set(ctx context.Context, userID uint, roles RoleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryEntry{roles: roles, expires: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(ctx context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
