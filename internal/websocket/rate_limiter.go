package websocket

import (
	"sync"
	"time"
)

// RateLimiter caps inbound frames per user in fixed windows. All connections
// of one user share a budget.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit frames per window. limit <= 0 disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientLimit),
	}
}

func (rl *RateLimiter) Allow(userID string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[userID]
	if !ok || now.Sub(cl.windowStart) >= rl.window {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}
	if cl.count >= rl.limit {
		return false
	}
	cl.count++
	return true
}

// Cleanup drops users whose window started more than five windows ago and
// returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	if rl == nil {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-5 * rl.window)
	removed := 0
	for userID, cl := range rl.clients {
		if cl.windowStart.Before(cutoff) {
			delete(rl.clients, userID)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
