package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/model"
)

func TestNewBase_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"priority too high", func(c *Config) { c.Priority = 11 }},
		{"priority zero", func(c *Config) { c.Priority = 0 }},
		{"unknown capability", func(c *Config) { c.Capability = "ocr" }},
		{"unknown kind", func(c *Config) { c.Kind = "ftp" }},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }},
		{"negative cost", func(c *Config) { c.CostPerRequest = -0.01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("p")
			tt.mut(&cfg)
			_, err := NewBase(cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewBase(testConfig("p"))
	assert.NoError(t, err)
}

func TestBase_RunSuccess(t *testing.T) {
	b, err := NewBase(testConfig("alpha"))
	require.NoError(t, err)

	resp := b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com/jane"},
		func(context.Context, model.ScrapeRequest) (*Outcome, error) {
			return &Outcome{Record: janeRecord(), Cost: 0.002, Tokens: model.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
		})

	require.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "alpha", resp.Provider)
	assert.InDelta(t, 90, resp.Confidence, 0.01)
	assert.InDelta(t, 90, resp.Record.Confidence.Overall, 0.01)
	assert.Equal(t, "https://example.com/jane", resp.Record.SourceURL)
	assert.Equal(t, []string{"alpha"}, resp.Metadata.ProvidersAttempted)
	assert.Equal(t, 1, resp.Metadata.AttemptCount)
	assert.InDelta(t, 0.002, resp.Metadata.Cost, 1e-9)
	assert.Equal(t, 15, resp.Metadata.Tokens.Total())

	st := b.Status()
	assert.Equal(t, int64(1), st.Requests)
	assert.Equal(t, int64(1), st.Successes)
	assert.InDelta(t, 90, st.AvgConfidence, 0.01)
}

func TestBase_RunRateLimitRefusesWithoutIO(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := testConfig("alpha")
	cfg.RateLimit = 2
	b, err := NewBase(cfg, WithClock(clock.Now))
	require.NoError(t, err)

	var calls atomic.Int32
	fetch := func(context.Context, model.ScrapeRequest) (*Outcome, error) {
		calls.Add(1)
		return &Outcome{Record: janeRecord()}, nil
	}
	req := model.ScrapeRequest{URL: "https://example.com/jane"}

	assert.True(t, b.Run(context.Background(), req, fetch).Success)
	assert.True(t, b.Run(context.Background(), req, fetch).Success)
	assert.False(t, b.CheckRateLimit())

	resp := b.Run(context.Background(), req, fetch)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindRateLimit, resp.Error.Kind)
	assert.Equal(t, "alpha", resp.Error.Provider)
	assert.Equal(t, int32(2), calls.Load())

	st := b.Status()
	assert.Equal(t, int64(2), st.Requests, "refusals are not requests")
	assert.Equal(t, int64(1), st.Refused)

	clock.Advance(time.Minute)
	assert.True(t, b.CheckRateLimit())
	assert.True(t, b.Run(context.Background(), req, fetch).Success)
}

func TestBase_RunDisabled(t *testing.T) {
	b, err := NewBase(testConfig("alpha"))
	require.NoError(t, err)
	b.SetEnabled(false)

	resp := b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com"},
		func(context.Context, model.ScrapeRequest) (*Outcome, error) {
			t.Fatal("disabled provider performed I/O")
			return nil, nil
		})
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindConfiguration, resp.Error.Kind)
	assert.False(t, b.CanHandle("https://example.com"))
	assert.False(t, *b.Config().Enabled)
}

func TestBase_RunTimeout(t *testing.T) {
	cfg := testConfig("slow")
	cfg.Timeout = 20 * time.Millisecond
	b, err := NewBase(cfg)
	require.NoError(t, err)

	resp := b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com"},
		func(ctx context.Context, _ model.ScrapeRequest) (*Outcome, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindTimeout, resp.Error.Kind)
	assert.Equal(t, int64(1), b.Status().Failures)
}

func TestBase_RunCallerCancelIsNotAFailure(t *testing.T) {
	b, err := NewBase(testConfig("loser"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	resp := b.Run(ctx, model.ScrapeRequest{URL: "https://example.com"},
		func(ctx context.Context, _ model.ScrapeRequest) (*Outcome, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.ErrorIs(t, resp.Error, context.Canceled)
	assert.Equal(t, 1, resp.Metadata.AttemptCount)

	st := b.Status()
	assert.Zero(t, st.Failures)
	assert.Zero(t, st.Requests)
	assert.Equal(t, int64(1), st.Abandoned)
	assert.Empty(t, st.LastError)
}

func TestBase_RunRequestTimeoutOverridesConfig(t *testing.T) {
	cfg := testConfig("slow")
	cfg.Timeout = time.Hour
	b, err := NewBase(cfg)
	require.NoError(t, err)

	var deadline time.Time
	b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com", Timeout: time.Second},
		func(ctx context.Context, _ model.ScrapeRequest) (*Outcome, error) {
			deadline, _ = ctx.Deadline()
			return &Outcome{Record: janeRecord()}, nil
		})
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}

func TestBase_RunRecoversPanic(t *testing.T) {
	b, err := NewBase(testConfig("flaky"))
	require.NoError(t, err)

	resp := b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com"},
		func(context.Context, model.ScrapeRequest) (*Outcome, error) {
			panic("nil map")
		})
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindUnknown, resp.Error.Kind)
	assert.Contains(t, resp.Error.Error(), "nil map")
}

func TestBase_RunEmptyRecordIsExtractionError(t *testing.T) {
	b, err := NewBase(testConfig("alpha"))
	require.NoError(t, err)

	for _, out := range []*Outcome{nil, {}, {Record: &model.ExtractedRecord{Image: "x.png"}}} {
		resp := b.Run(context.Background(), model.ScrapeRequest{URL: "https://example.com"},
			func(context.Context, model.ScrapeRequest) (*Outcome, error) { return out, nil })
		require.NotNil(t, resp.Error)
		assert.Equal(t, model.KindExtraction, resp.Error.Kind)
	}
}

func TestBase_LedgerQuotaAndCostTracking(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := testConfig("free")
	cfg.Kind = KindPerplexity
	cfg.Capability = model.CapabilityAIText
	cfg.DailyRequestQuota = 1
	cfg.CostPerRequest = 0.005
	b, err := NewBase(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	require.NotNil(t, b.Ledger())

	fetch := func(context.Context, model.ScrapeRequest) (*Outcome, error) {
		return &Outcome{Record: janeRecord(), Cost: 0.004, Tokens: model.TokenUsage{InputTokens: 100}}, nil
	}
	req := model.ScrapeRequest{URL: "https://example.com"}

	assert.InDelta(t, 0.005, b.EstimateCost(req), 1e-9)
	assert.True(t, b.Run(context.Background(), req, fetch).Success)
	assert.False(t, b.CheckRateLimit())

	resp := b.Run(context.Background(), req, fetch)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindQuotaExceeded, resp.Error.Kind)

	st := b.Status()
	require.NotNil(t, st.Ledger)
	assert.InDelta(t, 0.004, st.Ledger.TotalCost, 1e-9)
	assert.Equal(t, 100, st.Ledger.DailyTokens)

	clock.Advance(12 * time.Hour)
	assert.True(t, b.CheckRateLimit(), "quota resets at UTC midnight")
}

func TestBase_AdminSetters(t *testing.T) {
	b, err := NewBase(testConfig("alpha"))
	require.NoError(t, err)

	require.NoError(t, b.SetPriority(9))
	assert.Equal(t, 9, b.Config().Priority)
	assert.Error(t, b.SetPriority(0))
	assert.Error(t, b.SetPriority(11))

	require.NoError(t, b.SetRateLimit(30))
	assert.Equal(t, 30, b.Status().RateLimit)
	assert.Equal(t, 30, b.Status().RateRemaining)
	assert.Error(t, b.SetRateLimit(-1))
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		url     string
		domains []string
		want    bool
	}{
		{"https://example.com/a", nil, true},
		{"https://www.zillow.com/profile/x", []string{"zillow.com"}, true},
		{"https://zillow.com/profile/x", []string{"*.zillow.com"}, true},
		{"https://notzillow.com/", []string{"zillow.com"}, false},
		{"https://realtor.com/", []string{"zillow.com", "Realtor.com"}, true},
		{"not a url", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		if got := hostMatches(tt.url, tt.domains); got != tt.want {
			t.Errorf("hostMatches(%q, %v) = %v, want %v", tt.url, tt.domains, got, tt.want)
		}
	}
}
