package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default allowance per connection
const (
	DefaultEventsPerMinute = 100
	DefaultBurst           = 20
	staleAfter             = 5 * time.Minute
)

// RateLimiter implements per-connection token buckets
// ARCHITECTURAL DISCOVERY: Per-client state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimit
	now     func() time.Time
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute events with the given burst
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultEventsPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow reports whether connID may send one more event now
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[connID]
	if !ok {
		client = &clientLimit{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[connID] = client
	}
	client.lastSeen = now
	return client.limiter.AllowN(now, 1)
}

// Forget drops the state of a closed connection
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes entries idle for longer than five minutes
// ARCHITECTURAL DISCOVERY: Connections that vanish without a clean disconnect
// would otherwise keep their bucket forever
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for connID, client := range rl.clients {
		if now.Sub(client.lastSeen) > staleAfter {
			delete(rl.clients, connID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked connections
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
