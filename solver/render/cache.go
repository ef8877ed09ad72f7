package render

import (
	"container/list"
	"sync"
	"time"
)

// Cache is an LRU map from render key to image URL with per-entry expiry.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	expiresAt time.Time
	key       string
	url       string
}

// NewCache creates a cache holding at most capacity URLs for ttl each.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the URL cached under key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if c.now().After(e.expiresAt) {
		c.remove(el)
		return "", false
	}
	c.order.MoveToFront(el)
	return e.url, true
}

// Set stores url under key, evicting the least recently used entry when full.
func (c *Cache) Set(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.url, e.expiresAt = url, expiresAt
		c.order.MoveToFront(el)
		return
	}
	for len(c.entries) >= c.capacity {
		c.remove(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, url: url, expiresAt: expiresAt})
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// must be called with c.mu held
func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
