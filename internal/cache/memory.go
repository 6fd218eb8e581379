package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内缓存
type MemoryCache struct {
	entries *sync.Map
	now     func() time.Time
}

// memoryEntry 缓存条目
type memoryEntry struct {
	value     []byte
	expiresAt time.Time // 零值表示永不过期
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: &sync.Map{},
		now:     time.Now,
	}
}

// Get 获取缓存,过期条目会被删除
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.entries.Load(key)
	if !found {
		return nil, false, nil
	}

	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.entries.Delete(key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set 设置缓存
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Store(key, entry)
	return nil
}

// Delete 删除缓存
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Delete(key)
	}
	return nil
}

// Clear 清空缓存
func (c *MemoryCache) Clear() {
	c.entries.Range(func(key, value interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
