package cache

import (
	"sync"
	"time"
)

type item struct {
	value     any
	expiresAt time.Time
}

// ExpiringCache is a TTL cache with periodic cleanup. Entries expire after
// the configured TTL; a background ticker sweeps expired entries so the map
// does not grow unbounded between reads.
type ExpiringCache struct {
	ttl       time.Duration
	mu        sync.RWMutex
	items     map[string]item
	stop      chan struct{}
	closeOnce sync.Once
}

func NewExpiringCache(ttl, cleanupInterval time.Duration) *ExpiringCache {
	c := &ExpiringCache{
		ttl:   ttl,
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

func (c *ExpiringCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || time.Now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

func (c *ExpiringCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiresAt: time.Now().Add(c.ttl)}
}

func (c *ExpiringCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *ExpiringCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *ExpiringCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, it := range c.items {
				if now.After(it.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
