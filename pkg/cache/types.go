package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snow-ghost/dilemma/match"
)

// CacheKey represents a cache key
type CacheKey string

// CacheEntry represents a cached match result. Results are shared between
// readers and must not be modified.
type CacheEntry struct {
	Result       match.Result `json:"result"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	AccessCount  int          `json:"access_count"`
	LastAccessed time.Time    `json:"last_accessed"`
}

// Touch updates the access time and count
func (e *CacheEntry) Touch() {
	e.LastAccessed = time.Now()
	e.AccessCount++
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxSize         int           `yaml:"max_size" json:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize:         4096,
		DefaultTTL:      time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// MatchRequest identifies a match. A and B are strategy fingerprints, so a
// renamed or edited strategy never hits a stale entry.
type MatchRequest struct {
	A     string       `json:"a"`
	B     string       `json:"b"`
	Match match.Config `json:"match"`

	// Cache options
	Cache bool          `json:"-"`
	TTL   time.Duration `json:"-"`
}

// GenerateKey generates a cache key for a match
func GenerateKey(req MatchRequest) (CacheKey, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	hash := sha256.Sum256(data)
	return CacheKey(fmt.Sprintf("%x", hash)), nil
}

// Fingerprint hashes a strategy document for use in MatchRequest.
func Fingerprint(name string, doc []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(doc)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// CalculateHitRate calculates the hit rate
func (s *CacheStats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}
