package distribution

import (
	"sync"

	"golang.org/x/time/rate"
)

// SubscriptionLimiter rate-limits how often a single connection may open
// new feed subscriptions (SPEC_FULL.md §4.8's feed subscription rate
// limiting), mirroring the teacher's per-actor token bucket in
// core/pkg/auth/ratelimit.go, scoped to connections instead of HTTP
// principals.
type SubscriptionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewSubscriptionLimiter returns a limiter allowing perSecond new
// subscriptions per connection on average, with burst headroom.
func NewSubscriptionLimiter(perSecond float64, burst int) *SubscriptionLimiter {
	return &SubscriptionLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether connectionID may open another subscription right
// now, lazily creating its token bucket on first use.
func (l *SubscriptionLimiter) Allow(connectionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[connectionID]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[connectionID] = lim
	}
	return lim.Allow()
}

// Forget discards connectionID's bucket, called when the connection
// closes so the map does not grow unbounded across reconnects.
func (l *SubscriptionLimiter) Forget(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, connectionID)
}
