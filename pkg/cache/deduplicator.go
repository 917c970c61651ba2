package cache

import (
	"context"
	"sync"
	"time"

	"github.com/snow-ghost/dilemma/match"
	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent plays of the same match into one.
type Deduplicator struct {
	group singleflight.Group
	mu    sync.RWMutex
	stats DedupStats
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
	CacheHits    int64 `json:"cache_hits"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Execute runs fn once per key among concurrent callers.
func (d *Deduplicator) Execute(ctx context.Context, key CacheKey, fn func() (match.Result, error)) (match.Result, error) {
	result, err, shared := d.group.Do(string(key), func() (interface{}, error) {
		return fn()
	})
	d.record(shared, false)
	if err != nil {
		return match.Result{}, err
	}
	return result.(match.Result), nil
}

// ExecuteWithCache consults cache first and stores what fn produced.
// hit reports whether the result came from the cache.
func (d *Deduplicator) ExecuteWithCache(
	ctx context.Context,
	key CacheKey,
	cache *LRUCache,
	ttl time.Duration,
	fn func() (match.Result, error),
) (match.Result, bool, error) {
	if cache != nil {
		if entry, exists := cache.Get(key); exists {
			d.record(false, true)
			return entry.Result, true, nil
		}
	}

	result, err, shared := d.group.Do(string(key), func() (interface{}, error) {
		res, err := fn()
		if err != nil {
			return nil, err
		}
		if cache != nil {
			cache.Set(key, res, ttl)
		}
		return res, nil
	})
	d.record(shared, false)
	if err != nil {
		return match.Result{}, false, err
	}
	return result.(match.Result), shared, nil
}

func (d *Deduplicator) record(deduplicated, cacheHit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Requests++
	if deduplicated {
		d.stats.Deduplicated++
	}
	if cacheHit {
		d.stats.CacheHits++
	}
}

// Stats returns deduplication statistics
func (d *Deduplicator) Stats() DedupStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Reset resets all statistics
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = DedupStats{}
}

// DedupRate is the share of requests answered by another in-flight call.
func (s DedupStats) DedupRate() float64 {
	if s.Requests == 0 {
		return 0.0
	}
	return float64(s.Deduplicated) / float64(s.Requests)
}

// CacheHitRate is the share of requests answered from the cache.
func (s DedupStats) CacheHitRate() float64 {
	if s.Requests == 0 {
		return 0.0
	}
	return float64(s.CacheHits) / float64(s.Requests)
}
