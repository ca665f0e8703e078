package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/spounge-ai/persistor/pkg/cache"
	"golang.org/x/time/rate"
)

// idleTTL is how long a peer's bucket is kept after its last request.
const idleTTL = 10 * time.Minute

// Limiter decides whether a caller identified by a key may proceed.
type Limiter interface {
	Allow(identifier string) bool
}

// NewInMemoryRateLimiter returns a token bucket per identifier with rate r
// and burst b. Buckets of idle identifiers are dropped after idleTTL.
func NewInMemoryRateLimiter(r rate.Limit, b int) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		rate:  r,
		burst: b,
		clients: cache.New(
			cache.WithDefaultTTL[string, *rate.Limiter](idleTTL),
			cache.WithCleanupInterval[string, *rate.Limiter](idleTTL/2),
		),
	}
}

type InMemoryRateLimiter struct {
	rate    rate.Limit
	burst   int
	clients *cache.Cache[string, *rate.Limiter]
	mu      sync.Mutex
}

var _ Limiter = (*InMemoryRateLimiter)(nil)

func (l *InMemoryRateLimiter) Allow(identifier string) bool {
	ctx := context.Background()

	l.mu.Lock()
	limiter, ok := l.clients.Get(ctx, identifier)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
	}
	// Refresh the idle deadline on every request.
	l.clients.Set(ctx, identifier, limiter, 0)
	l.mu.Unlock()

	return limiter.Allow()
}

// Stop ends the background cleanup of idle buckets.
func (l *InMemoryRateLimiter) Stop() {
	l.clients.Stop()
}
