package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests" json:"max_requests"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32  `yaml:"min_requests" json:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio" json:"failure_ratio"`
}

// DefaultBreakerConfig returns a default circuit breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     10 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// BreakerSet holds one circuit breaker per remote target (a decision
// service endpoint, an LLM model).
type BreakerSet struct {
	config   BreakerConfig
	logger   *logging.Logger
	breakers map[string]*gobreaker.CircuitBreaker
	onChange func(name, from, to string)
	mu       sync.Mutex
}

// NewBreakerSet creates a breaker set; logger may be nil.
func NewBreakerSet(config BreakerConfig, logger *logging.Logger) *BreakerSet {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BreakerSet{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// OnStateChange registers a hook for breakers created afterwards.
func (s *BreakerSet) OnStateChange(fn func(name, from, to string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Breaker returns or creates the circuit breaker for a target
func (s *BreakerSet) Breaker(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[name]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.config.MaxRequests,
		Interval:    s.config.Interval,
		Timeout:     s.config.Timeout,
		ReadyToTrip: s.config.readyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
			if s.onChange != nil {
				s.onChange(name, from.String(), to.String())
			}
		},
	})
	s.breakers[name] = b
	return b
}

// Execute runs fn through the target's circuit breaker
func (s *BreakerSet) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.Breaker(name).Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", name, err)
	}
	return result, nil
}

// State returns the current state of a target's breaker
func (s *BreakerSet) State(name string) gobreaker.State {
	return s.Breaker(name).State()
}

// IsOpen checks if the circuit breaker is open for a target
func (s *BreakerSet) IsOpen(name string) bool {
	return s.State(name) == gobreaker.StateOpen
}

// Stats returns circuit breaker statistics for a target
func (s *BreakerSet) Stats(name string) map[string]interface{} {
	b := s.Breaker(name)
	counts := b.Counts()

	return map[string]interface{}{
		"name":                 name,
		"state":                b.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_success":  counts.ConsecutiveSuccesses,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// Reset drops the breaker for a target
func (s *BreakerSet) Reset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, name)
}
