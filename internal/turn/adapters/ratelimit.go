package adapters

import (
	"github.com/arcbound/turnloop/internal/ratelimit"
	"github.com/arcbound/turnloop/internal/turn/ports"
)

// RateLimitAdapter implements ports.RateLimitPort over the per-key
// token-bucket ratelimit.Limiter.
type RateLimitAdapter struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitAdapter builds an adapter backed by a ratelimit.Limiter
// configured with cfg.
func NewRateLimitAdapter(cfg ratelimit.Config) *RateLimitAdapter {
	return &RateLimitAdapter{limiter: ratelimit.NewLimiter(cfg)}
}

// TryConsume draws one token from key's bucket.
func (a *RateLimitAdapter) TryConsume(key string) ports.RateLimitResult {
	if a.limiter.Allow(key) {
		return ports.RateLimitResult{Allowed: true}
	}
	return ports.RateLimitResult{Allowed: false, RetryAfter: a.limiter.WaitTime(key)}
}
