package limiter

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateConfig is a token bucket per client key.
type RateConfig struct {
	// RPS is the sustained requests per second; 0 disables limiting.
	RPS     float64 `yaml:"rps" json:"rps"`
	Burst   int     `yaml:"burst" json:"burst"`
	MaxKeys int     `yaml:"max_keys" json:"max_keys"`
}

// DefaultRateConfig returns a default rate configuration
func DefaultRateConfig() RateConfig {
	return RateConfig{RPS: 200, Burst: 400, MaxKeys: 4096}
}

// RateLimiter keeps one limiter per client. Idle clients are evicted
// once MaxKeys is exceeded.
type RateLimiter struct {
	config   RateConfig
	limiters *lru.Cache[string, *rate.Limiter]
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateConfig) *RateLimiter {
	if config.MaxKeys <= 0 {
		config.MaxKeys = DefaultRateConfig().MaxKeys
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RPS)
		if config.Burst < 1 {
			config.Burst = 1
		}
	}
	cache, _ := lru.New[string, *rate.Limiter](config.MaxKeys)
	return &RateLimiter{config: config, limiters: cache}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.config.RPS > 0
}

// Limiter returns or creates the limiter for a client key
func (rl *RateLimiter) Limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)
	rl.limiters.Add(key, l)
	return l
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	return rl.Limiter(key).Allow()
}

// Wait waits for the rate limiter to allow the request
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if !rl.Enabled() {
		return nil
	}
	if err := rl.Limiter(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Stats returns rate limiter statistics for a client key
func (rl *RateLimiter) Stats(key string) map[string]interface{} {
	l := rl.Limiter(key)
	return map[string]interface{}{
		"key":    key,
		"limit":  float64(l.Limit()),
		"burst":  l.Burst(),
		"tokens": l.Tokens(),
	}
}

// Reset forgets a client
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters.Remove(key)
}
