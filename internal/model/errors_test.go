package model

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"scrape error", NewScrapeError(KindValidation, "bad url", nil), KindValidation},
		{"wrapped scrape error", eris.Wrap(NewScrapeError(KindRateLimit, "slow down", nil), "attempt"), KindRateLimit},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", eris.Wrap(context.DeadlineExceeded, "get"), KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetwork},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScrapeErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewScrapeError(KindProvider, "upstream failed", errors.New("502")).WithProvider("jina").WithStatus(502)
	assert.Equal(t, "jina: provider: upstream failed: 502", err.Error())
	assert.Equal(t, 502, err.StatusCode)

	inner := errors.New("cause")
	wrapped := NewScrapeError(KindNetwork, "dial", inner)
	assert.ErrorIs(t, wrapped, inner)
}

func TestAsScrapeError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AsScrapeError(nil))

	se := NewScrapeError(KindAuthentication, "bad key", nil)
	assert.Same(t, se, AsScrapeError(eris.Wrap(se, "ctx")))

	got := AsScrapeError(context.DeadlineExceeded)
	require.NotNil(t, got)
	assert.Equal(t, KindTimeout, got.Kind)
}

func TestParseCapability(t *testing.T) {
	t.Parallel()

	c, err := ParseCapability("ai_vision")
	require.NoError(t, err)
	assert.True(t, c.IsAI())
	assert.False(t, CapabilityConventional.IsAI())

	_, err = ParseCapability("quantum")
	assert.Error(t, err)
}
