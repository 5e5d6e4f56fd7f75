package provider

import (
	"sync"
	"time"
)

// RateLimiter is a per-minute request counter. The counter resets once a full
// window has elapsed since the window opened.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	nowFunc     func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per minute.
// A non-positive limit disables limiting.
func NewRateLimiter(perMinute int, nowFunc func() time.Time) *RateLimiter {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &RateLimiter{limit: perMinute, window: time.Minute, nowFunc: nowFunc}
}

// must hold mu
func (l *RateLimiter) roll() {
	now := l.nowFunc()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
}

// Peek reports whether a request would be allowed now without consuming capacity.
func (l *RateLimiter) Peek() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return true
	}
	l.roll()
	return l.count < l.limit
}

// Allow consumes one unit of capacity if available.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return true
	}
	l.roll()
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// Remaining returns the requests left in the current window, or -1 when unlimited.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return -1
	}
	l.roll()
	return l.limit - l.count
}

// ResetAt returns when the current window closes.
func (l *RateLimiter) ResetAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	return l.windowStart.Add(l.window)
}

// Limit returns the configured per-minute limit.
func (l *RateLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// SetLimit changes the per-minute limit. The current count is kept.
func (l *RateLimiter) SetLimit(perMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = perMinute
}
