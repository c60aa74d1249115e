package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSHACache backs the SHA resolver with a shared Redis instance so
// concurrent handlers across processes see each other's resolutions.
type RedisSHACache struct {
	client *redis.Client
}

// NewRedisSHACache connects to Redis at addr and verifies the connection.
func NewRedisSHACache(addr string) (*RedisSHACache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisSHACache{client: client}, nil
}

// Get returns the cached pull number for the key, if any.
func (c *RedisSHACache) Get(ctx context.Context, key string) (int, bool, error) {
	number, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return number, true, nil
}

// Set stores the pull number under the key with the given expiry.
func (c *RedisSHACache) Set(ctx context.Context, key string, pullNumber int, expiry time.Duration) error {
	return c.client.Set(ctx, key, pullNumber, expiry).Err()
}

// Close releases the underlying Redis connection.
func (c *RedisSHACache) Close() error {
	return c.client.Close()
}

// MemorySHACache is an in-process SHACache, used in tests and in
// single-process deployments that run without Redis.
type MemorySHACache struct {
	entries map[string]memoryCacheEntry
	now     func() time.Time
	mu      sync.Mutex
}

type memoryCacheEntry struct {
	expiresAt time.Time
	number    int
}

// NewMemorySHACache creates an empty in-process cache.
func NewMemorySHACache() *MemorySHACache {
	return &MemorySHACache{entries: make(map[string]memoryCacheEntry), now: time.Now}
}

// Get returns the cached pull number for the key, if present and fresh.
func (c *MemorySHACache) Get(_ context.Context, key string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return 0, false, nil
	}
	return entry.number, true, nil
}

// Set stores the pull number under the key with the given expiry.
func (c *MemorySHACache) Set(_ context.Context, key string, pullNumber int, expiry time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{number: pullNumber, expiresAt: c.now().Add(expiry)}
	return nil
}
