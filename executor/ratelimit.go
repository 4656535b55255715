package executor

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-tool call rate (part of the tool registry's
// observability), lazily creating one token-bucket limiter per tool name
// the first time it is seen.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a RateLimiter allowing rps calls/second per tool;
// each tool's bucket holds burst tokens, so at most burst calls pass at once.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether toolName may be invoked now, consuming a token
// from its bucket if so.
func (rl *RateLimiter) Allow(toolName string) bool {
	return rl.limiterFor(toolName).Allow()
}

func (rl *RateLimiter) limiterFor(toolName string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[toolName]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[toolName] = l
	}
	return l
}
