package contract

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	contract *Contract
	loadedAt time.Time
}

// Cache memoizes loaded contracts per source. Entries older than TTL are
// reloaded on the next Get. Concurrent misses for the same source share one
// load, and the lock is never held while loading. Returned contracts are
// shared and must be treated as read-only.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	entries *lru.Cache[string, cacheEntry]
}

// NewCache creates a cache holding up to size contracts.
func NewCache(loader Loader, size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 16
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		loader:  loader,
		ttl:     ttl,
		now:     time.Now,
		entries: entries,
	}, nil
}

// Get returns the contract for source, loading it on a miss or expiry.
func (c *Cache) Get(ctx context.Context, source string) (*Contract, error) {
	key := strings.TrimSpace(source)
	if key == "" {
		key = DefaultSource
	}

	if hit, ok := c.lookup(key); ok {
		return hit, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if hit, ok := c.lookup(key); ok {
			return hit, nil
		}
		loaded, err := c.loader.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries.Add(key, cacheEntry{contract: loaded, loadedAt: c.now()})
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Contract), nil
}

func (c *Cache) lookup(key string) (*Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl {
		return e.contract, true
	}
	c.entries.Remove(key)
	return nil, false
}

// Len reports the number of cached contracts.
func (c *Cache) Len() int {
	return c.entries.Len()
}
