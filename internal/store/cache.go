package store

import (
	"container/list"
	"sync"
)

// LRUCache is a size-bounded in-memory cache for decompressed values.
// A caller-owned instance, constructed explicitly: there is no shared
// process-wide cache state.
type LRUCache struct {
	maxEntries int
	mu         sync.Mutex
	ll         *list.List
	items      map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value []byte
}

// NewLRUCache creates a cache holding at most maxEntries values.
// A non-positive size disables caching entirely.
func NewLRUCache(maxEntries int) *LRUCache {
	return &LRUCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (c *LRUCache) Get(key string) ([]byte, bool) {
	if c.maxEntries <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *LRUCache) Add(key string, value []byte) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).value = value
		return
	}

	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, value: value})
	if c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *LRUCache) Has(key string) bool {
	if c.maxEntries <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

func (c *LRUCache) Remove(key string) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *LRUCache) Clear() {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}
