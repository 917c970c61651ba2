package cache

import (
	"context"
	"fmt"

	"github.com/snow-ghost/dilemma/match"
)

// LookupHook observes every cached lookup.
type LookupHook func(ctx context.Context, key CacheKey, hit bool)

// ResultCache memoises match results and deduplicates concurrent plays.
// Matches are deterministic for a given pair, config and seed, so a cached
// result is as good as a replay.
type ResultCache struct {
	cache        *LRUCache
	deduplicator *Deduplicator
	config       *CacheConfig
	hook         LookupHook
}

// NewResultCache creates a new result cache
func NewResultCache(config *CacheConfig) (*ResultCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	cache, err := NewLRUCache(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &ResultCache{
		cache:        cache,
		deduplicator: NewDeduplicator(),
		config:       config,
	}, nil
}

// OnLookup installs a hook for logging and metrics.
func (rc *ResultCache) OnLookup(hook LookupHook) {
	rc.hook = hook
}

// Play returns the cached result for req or runs fn to produce it.
func (rc *ResultCache) Play(ctx context.Context, req MatchRequest, fn func() (match.Result, error)) (match.Result, error) {
	if !req.Cache {
		return fn()
	}

	key, err := GenerateKey(req)
	if err != nil {
		return match.Result{}, fmt.Errorf("failed to generate cache key: %w", err)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = rc.config.DefaultTTL
	}

	res, hit, err := rc.deduplicator.ExecuteWithCache(ctx, key, rc.cache, ttl, fn)
	if err == nil && rc.hook != nil {
		rc.hook(ctx, key, hit)
	}
	return res, err
}

// Get retrieves a cached result
func (rc *ResultCache) Get(req MatchRequest) (match.Result, bool) {
	key, err := GenerateKey(req)
	if err != nil {
		return match.Result{}, false
	}
	entry, ok := rc.cache.Get(key)
	if !ok {
		return match.Result{}, false
	}
	return entry.Result, true
}

// Set stores a result
func (rc *ResultCache) Set(req MatchRequest, res match.Result) error {
	key, err := GenerateKey(req)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}
	rc.cache.Set(key, res, req.TTL)
	return nil
}

// Delete removes a cached result
func (rc *ResultCache) Delete(req MatchRequest) error {
	key, err := GenerateKey(req)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}
	rc.cache.Delete(key)
	return nil
}

// Clear removes all values from the cache
func (rc *ResultCache) Clear() {
	rc.cache.Clear()
	rc.deduplicator.Reset()
}

// Len returns the number of cached results
func (rc *ResultCache) Len() int {
	return rc.cache.Len()
}

// Stats returns cache and deduplication statistics
func (rc *ResultCache) Stats() map[string]interface{} {
	cacheStats := rc.cache.Stats()
	dedup := rc.deduplicator.Stats()

	return map[string]interface{}{
		"cache": map[string]interface{}{
			"hits":        cacheStats.Hits,
			"misses":      cacheStats.Misses,
			"size":        cacheStats.Size,
			"max_size":    cacheStats.MaxSize,
			"hit_rate":    cacheStats.HitRate,
			"evictions":   cacheStats.Evictions,
			"expirations": cacheStats.Expirations,
		},
		"deduplication": map[string]interface{}{
			"total_requests":     dedup.Requests,
			"total_deduplicated": dedup.Deduplicated,
			"total_cache_hits":   dedup.CacheHits,
			"dedup_rate":         dedup.DedupRate(),
			"cache_hit_rate":     dedup.CacheHitRate(),
		},
	}
}

// Close stops background cleanup
func (rc *ResultCache) Close() {
	rc.cache.Close()
}
