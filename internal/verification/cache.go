package verification

import (
	"container/list"
	"sync"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

type cacheKey struct {
	domain     string
	customerID v1.CustomerID
}

// verifiedCache is an LRU set of (domain, customer) pairs known to be verified.
// Only positive results are cached; every status write invalidates its key.
type verifiedCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	order    *list.List
}

func newVerifiedCache(capacity int) *verifiedCache {
	return &verifiedCache{
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element),
		order:    list.New(),
	}
}

func (c *verifiedCache) contains(key cacheKey) bool {
	if c.capacity <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

func (c *verifiedCache) add(key cacheKey) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			delete(c.entries, oldest.Value.(cacheKey))
			c.order.Remove(oldest)
		}
	}
	c.entries[key] = c.order.PushFront(key)
}

func (c *verifiedCache) invalidate(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.order.Remove(elem)
	}
}

func (c *verifiedCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
