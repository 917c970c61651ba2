package limiter

import (
	"context"
	"fmt"

	"github.com/snow-ghost/dilemma/pkg/logging"
)

// Protector runs calls to a remote target through retry inside a circuit
// breaker, so one open breaker short-circuits a whole retry sequence.
type Protector struct {
	retry    *RetryManager
	breakers *BreakerSet
	logger   *logging.Logger
	onRetry  func(target string)
}

// NewProtector creates a protector. Nil arguments take defaults.
func NewProtector(retry *RetryConfig, breakers *BreakerSet, logger *logging.Logger) *Protector {
	if logger == nil {
		logger = logging.NewNop()
	}
	if breakers == nil {
		breakers = NewBreakerSet(DefaultBreakerConfig(), logger)
	}
	return &Protector{
		retry:    NewRetryManager(retry),
		breakers: breakers,
		logger:   logger,
	}
}

// OnRetry registers a hook called before each retry.
func (p *Protector) OnRetry(fn func(target string)) {
	p.onRetry = fn
}

// Breakers exposes the underlying breaker set.
func (p *Protector) Breakers() *BreakerSet { return p.breakers }

// Execute calls fn for target with retry and circuit breaking.
func (p *Protector) Execute(ctx context.Context, target string, fn RetryableFunc) (interface{}, error) {
	retry := &RetryManager{config: p.retry.config}
	retry.OnRetry(func(attempt int, err error) {
		p.logger.LogRetry(ctx, target, err.Error(), attempt)
		if p.onRetry != nil {
			p.onRetry(target)
		}
	})

	result, err := p.breakers.Execute(target, func() (interface{}, error) {
		return retry.Execute(ctx, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("protected call to %s failed: %w", target, err)
	}
	return result, nil
}
