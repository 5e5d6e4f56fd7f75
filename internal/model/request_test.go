package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := ScrapeRequest{URL: "https://example.com/agents/jane", Options: map[string]any{"a": 1, "b": "x"}}

	t.Run("deterministic across option order", func(t *testing.T) {
		t.Parallel()
		other := ScrapeRequest{URL: "https://example.com/agents/jane", Options: map[string]any{"b": "x", "a": 1}}
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("scheme and host case folded", func(t *testing.T) {
		t.Parallel()
		other := ScrapeRequest{URL: "  HTTPS://Example.COM/agents/jane#bio", Options: base.Options}
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("path is case sensitive", func(t *testing.T) {
		t.Parallel()
		other := ScrapeRequest{URL: "https://example.com/Agents/Jane", Options: base.Options}
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("options change key", func(t *testing.T) {
		t.Parallel()
		other := ScrapeRequest{URL: base.URL, Options: map[string]any{"a": 2, "b": "x"}}
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("timeout is not part of key", func(t *testing.T) {
		t.Parallel()
		other := base
		other.Timeout = 5 * time.Second
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("nil and empty options match", func(t *testing.T) {
		t.Parallel()
		a := ScrapeRequest{URL: "https://example.com"}
		b := ScrapeRequest{URL: "https://example.com", Options: map[string]any{}}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("unencodable options still change key", func(t *testing.T) {
		t.Parallel()
		a := ScrapeRequest{URL: base.URL, Options: map[string]any{"depth": make(chan int), "mode": "fast"}}
		b := ScrapeRequest{URL: base.URL, Options: map[string]any{"depth": make(chan int), "mode": "slow"}}
		plain := ScrapeRequest{URL: base.URL}
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
		assert.NotEqual(t, plain.Fingerprint(), a.Fingerprint())
	})
}

func TestScrapeRequestHostAndOption(t *testing.T) {
	t.Parallel()

	req := ScrapeRequest{URL: "https://WWW.Zillow.com/profile/jd", Options: map[string]any{"mode": "fast", "n": 3}}
	assert.Equal(t, "zillow.com", req.Host())
	assert.Equal(t, "fast", req.Option("mode"))
	assert.Equal(t, "3", req.Option("n"))
	assert.Equal(t, "", req.Option("missing"))
}

func TestScrapeResponseClone(t *testing.T) {
	t.Parallel()

	orig := &ScrapeResponse{
		Success: true,
		Record:  &ExtractedRecord{Name: "Jane"},
		Metadata: Metadata{
			ProvidersAttempted: []string{"http"},
			Skipped:            map[string]string{"ai": "quota"},
			Candidates:         []Candidate{{Provider: "x", Record: &ExtractedRecord{Name: "J"}}},
		},
	}
	c := orig.Clone()
	c.Record.Name = "changed"
	c.Metadata.ProvidersAttempted[0] = "changed"
	c.Metadata.Skipped["ai"] = "changed"
	c.Metadata.Candidates[0].Record.Name = "changed"

	assert.Equal(t, "Jane", orig.Record.Name)
	assert.Equal(t, "http", orig.Metadata.ProvidersAttempted[0])
	assert.Equal(t, "quota", orig.Metadata.Skipped["ai"])
	assert.Equal(t, "J", orig.Metadata.Candidates[0].Record.Name)
}

func TestTokenUsage(t *testing.T) {
	t.Parallel()

	a := TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01}
	a.Add(TokenUsage{InputTokens: 200, OutputTokens: 100, Cost: 0.02})
	assert.Equal(t, 300, a.InputTokens)
	assert.Equal(t, 150, a.OutputTokens)
	assert.Equal(t, 450, a.Total())
	assert.InDelta(t, 0.03, a.Cost, 0.0001)
}
