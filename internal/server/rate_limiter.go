package server

import (
	"sync"
	"time"
)

// rateLimiter throttles inbound frames per connection so one chatty client
// cannot monopolize the router. It is a whole-token bucket: the bucket starts
// full and regains one token every interval/capacity.
type rateLimiter struct {
	mu       sync.Mutex
	capacity int
	tokens   int
	perToken time.Duration
	last     time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &rateLimiter{
		capacity: capacity,
		tokens:   capacity,
		perToken: interval / time.Duration(capacity),
		last:     time.Now(),
	}
}

// allow consumes one token if available, crediting back any tokens earned
// since the last call first.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if earned := int(now.Sub(rl.last) / rl.perToken); earned > 0 {
		rl.tokens += earned
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		// Advance by whole tokens only, keeping the fractional remainder
		// accruing toward the next one.
		rl.last = rl.last.Add(time.Duration(earned) * rl.perToken)
	}

	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}
