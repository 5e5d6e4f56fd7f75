package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Limit(4), 1)

	a.OnRateLimit()
	assert.InDelta(t, 2.0, float64(a.Limit()), 0.001)
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 1.0, float64(a.Limit()), 0.001, "floored at a quarter of the initial rate")

	for i := 0; i < 20; i++ {
		a.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(a.Limit()), 0.001, "capped at twice the initial rate")
}

func TestHostLimiter_PerHost(t *testing.T) {
	h := NewHostLimiter(10, 1)

	a1, err := h.For("https://example.com/a")
	require.NoError(t, err)
	a2, err := h.For("https://example.com/b")
	require.NoError(t, err)
	b, err := h.For("https://other.com/")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)

	_, err = h.For("::bad")
	assert.Error(t, err)
}

func TestHostLimiter_WaitCancelled(t *testing.T) {
	h := NewHostLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := h.Wait(ctx, "https://example.com/")
	require.NoError(t, err, "first token is available from the burst")

	cancel()
	_, err = h.Wait(ctx, "https://example.com/")
	assert.Error(t, err)
}
