package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/snow-ghost/dilemma/match"
)

// LRUCache holds finished match results, bounded by count and by age.
// A result replayed from the cache must be byte-for-byte the match that
// would have been played, so entries are never updated in place.
type LRUCache struct {
	mu      sync.Mutex
	entries *lru.Cache[CacheKey, *CacheEntry]
	ttl     time.Duration
	stats   CacheStats

	sweep *time.Ticker
	done  chan struct{}
	once  sync.Once
}

func NewLRUCache(config *CacheConfig) (*LRUCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	entries, err := lru.New[CacheKey, *CacheEntry](config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("result cache of size %d: %w", config.MaxSize, err)
	}

	c := &LRUCache{
		entries: entries,
		ttl:     config.DefaultTTL,
		stats:   CacheStats{MaxSize: config.MaxSize},
		done:    make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		c.sweep = time.NewTicker(config.CleanupInterval)
		go c.sweepLoop()
	}
	return c, nil
}

// Get returns the cached result for key. Expired entries count as misses
// and are dropped on the way out.
func (c *LRUCache) Get(key CacheKey) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	switch {
	case !ok:
		c.stats.Misses++
		return nil, false
	case c.expired(key, entry, time.Now()):
		c.stats.Misses++
		return nil, false
	}
	entry.Touch()
	c.stats.Hits++
	return entry, true
}

// Set stores result under key. A ttl of zero uses the configured default.
func (c *LRUCache) Set(key CacheKey, result match.Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, result, ttl)
}

func (c *LRUCache) store(key CacheKey, result match.Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now()
	if c.entries.Add(key, &CacheEntry{Result: result, CreatedAt: now, ExpiresAt: now.Add(ttl), LastAccessed: now}) {
		c.stats.Evictions++
	}
	c.stats.Size = c.entries.Len()
}

// expired removes entry when it is past its deadline. Callers hold mu.
func (c *LRUCache) expired(key CacheKey, entry *CacheEntry, now time.Time) bool {
	if now.Before(entry.ExpiresAt) {
		return false
	}
	c.entries.Remove(key)
	c.stats.Expirations++
	c.stats.Size = c.entries.Len()
	return true
}

func (c *LRUCache) Delete(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
	c.stats.Size = c.entries.Len()
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.stats.Size = 0
}

// Sweep drops every expired entry and reports how many went.
func (c *LRUCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, n := time.Now(), 0
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && c.expired(key, entry, now) {
			n++
		}
	}
	return n
}

func (c *LRUCache) sweepLoop() {
	defer c.sweep.Stop()
	for {
		select {
		case <-c.sweep.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = c.entries.Len()
	stats.CalculateHitRate()
	return stats
}

// Reset zeroes the counters but keeps the cached results.
func (c *LRUCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = CacheStats{MaxSize: c.stats.MaxSize, Size: c.entries.Len()}
}

// Close stops the background sweep. It is safe to call more than once.
func (c *LRUCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *LRUCache) Keys() []CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
