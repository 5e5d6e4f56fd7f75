package provider

import (
	"context"
	"net/url"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("provider: reducing per-host rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HostLimiter keeps one adaptive limiter per target host so a single profile
// site is not hammered by concurrent scrapes.
type HostLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[string]*AdaptiveLimiter
}

// NewHostLimiter creates a HostLimiter with the given per-host rate.
func NewHostLimiter(perSec float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		perSec:   rate.Limit(perSec),
		burst:    burst,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// For returns the limiter for rawURL's host, creating it on first use.
func (h *HostLimiter) For(rawURL string) (*AdaptiveLimiter, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("provider: invalid url %q", rawURL)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[u.Host]
	if !ok {
		lim = NewAdaptiveLimiter(h.perSec, h.burst)
		h.limiters[u.Host] = lim
	}
	return lim, nil
}

// Wait blocks until rawURL's host may be fetched again.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) (*AdaptiveLimiter, error) {
	lim, err := h.For(rawURL)
	if err != nil {
		return nil, err
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: host limiter wait")
	}
	return lim, nil
}
