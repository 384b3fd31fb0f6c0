package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helpdesk-system/internal/repositories"
)

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// Cache повторяет семантику Redis-кеша: строковые значения и TTL.
type Cache struct {
	mutex sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem), now: time.Now}
}

var _ repositories.CacheRepositoryInterface = (*Cache)(nil)

func (c *Cache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		s = fmt.Sprint(v)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	item := cacheItem{value: s}
	if expiration > 0 {
		item.expiresAt = c.now().Add(expiration)
	}
	c.items[key] = item
	return nil
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	item, ok := c.items[key]
	if !ok {
		return "", repositories.ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		delete(c.items, key)
		return "", repositories.ErrCacheMiss
	}
	return item.value, nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}
