package item

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached listing stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCacheMaxEntries caps cache growth for long-running processes.
const DefaultCacheMaxEntries = 1024

// cacheEntry holds a cached listing with its fetch timestamp.
type cacheEntry struct {
	item      *Item
	fetchedAt time.Time
}

// Cache is a TTL cache for listings keyed by "{type}_{id}".
// Entries older than the TTL are treated as absent. When the entry count
// exceeds the cap, the stalest entries are evicted.
// Thread-safe for concurrent use; intended to be process-scoped, so callers
// must accept staleness up to the TTL after an item is updated.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewCache creates a cache with the given TTL and entry cap.
// Non-positive arguments fall back to the defaults.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached listing if present and younger than the TTL.
func (c *Cache) Get(itemType Type, id string) (*Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[memKey(itemType, id)]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, memKey(itemType, id))
		return nil, false
	}

	copied := *entry.item
	return &copied, true
}

// Put stores a listing, evicting the stalest entries if over the cap.
func (c *Cache) Put(itemType Type, id string, it *Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *it
	c.entries[memKey(itemType, id)] = cacheEntry{item: &copied, fetchedAt: c.now()}

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of cached entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// evictOldestLocked removes the oldest entries until the cache is back
// under its cap. Caller must hold the mutex.
func (c *Cache) evictOldestLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.fetchedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.fetchedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// CachingRepository wraps a Repository with a read-through listing cache.
// Only GetByID is cached; ListFeatured and Search pass through, since their
// result sets change with writes the cache cannot observe.
type CachingRepository struct {
	inner   Repository
	cache   *Cache
	metrics *Metrics
	logger  *slog.Logger
}

// NewCachingRepository creates a caching wrapper around inner.
// metrics may be nil to disable instrumentation.
func NewCachingRepository(inner Repository, cache *Cache, metrics *Metrics, logger *slog.Logger) *CachingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingRepository{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// GetByID returns the cached listing when fresh, otherwise fetches from the
// inner repository and caches the result.
func (r *CachingRepository) GetByID(ctx context.Context, itemType Type, id string) (*Item, error) {
	if it, ok := r.cache.Get(itemType, id); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheHit()
		}
		return it, nil
	}
	if r.metrics != nil {
		r.metrics.RecordCacheMiss()
	}

	it, err := r.inner.GetByID(ctx, itemType, id)
	if err != nil {
		return nil, err
	}

	r.cache.Put(itemType, id, it)
	return it, nil
}

// ListFeatured passes through to the inner repository.
func (r *CachingRepository) ListFeatured(ctx context.Context, itemType Type, limit int) ([]*Item, error) {
	return r.inner.ListFeatured(ctx, itemType, limit)
}

// Search passes through to the inner repository.
func (r *CachingRepository) Search(ctx context.Context, itemType Type, query string, limit int) ([]*Item, error) {
	return r.inner.Search(ctx, itemType, query, limit)
}
