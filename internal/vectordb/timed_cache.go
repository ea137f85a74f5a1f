package vectordb

import (
	"sync"
	"time"
)

// timedCacheEntry 缓存条目，记录值和过期时间
type timedCacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// TimedCache 带TTL的内存缓存，用于缓存查询结果
type TimedCache struct {
	mu      sync.RWMutex
	entries map[string]timedCacheEntry
	ttl     time.Duration
}

// NewTimedCache 创建TTL缓存
func NewTimedCache(ttl time.Duration) *TimedCache {
	return &TimedCache{
		entries: make(map[string]timedCacheEntry),
		ttl:     ttl,
	}
}

// Set 设置缓存值，过期时间为当前时间加TTL
func (c *TimedCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = timedCacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Get 获取缓存值，过期的条目视为不存在
func (c *TimedCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()
	if !found {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Cleanup 清理所有已过期的条目
func (c *TimedCache) Cleanup() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Flush 清空全部缓存条目
func (c *TimedCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]timedCacheEntry)
}
