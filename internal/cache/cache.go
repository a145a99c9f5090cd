package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

type CacheItem struct {
	Value     any
	ExpiresAt time.Time
}

// Cache is an in-memory TTL cache for upstream results (summaries, fetched
// pages). Expired entries are dropped on read and by a background janitor.
type Cache struct {
	mu    sync.RWMutex
	items map[string]CacheItem
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// New starts a cache whose janitor runs every interval. A zero interval
// disables the janitor.
func New(ttl, interval time.Duration) *Cache {
	c := &Cache{
		items: make(map[string]CacheItem),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanupLoop(interval)
	}
	return c
}

// Set stores value with the cache's default TTL. A non-positive TTL makes
// the cache a no-op.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.ttl)
}

func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = CacheItem{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if time.Now().After(item.ExpiresAt) {
		c.evictExpired(key)
		return nil, false
	}

	return item.Value, true
}

// evictExpired deletes key only if it is still expired under the write lock;
// a Set may have replaced it since the read lock was released.
func (c *Cache) evictExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok && time.Now().After(item.ExpiresAt) {
		delete(c.items, key)
	}
}

// GetString is Get for string values.
func (c *Cache) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// GenerateKey hashes the parts into a stable key.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
		}
	}
}
