package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/provider"
	"github.com/sells-group/profile-enricher/internal/resilience"
	"github.com/sells-group/profile-enricher/internal/usage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProvider runs a scripted fetch through the real provider.Base flow.
type stubProvider struct {
	*provider.Base
	fetch provider.FetchFunc
	calls atomic.Int32
}

func (p *stubProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, func(ctx context.Context, req model.ScrapeRequest) (*provider.Outcome, error) {
		p.calls.Add(1)
		return p.fetch(ctx, req)
	})
}

type stubOpt func(*provider.Config)

func withCost(c float64) stubOpt {
	return func(cfg *provider.Config) { cfg.CostPerRequest = c }
}

func withRateLimit(n int) stubOpt {
	return func(cfg *provider.Config) { cfg.RateLimit = n }
}

func withDomains(d ...string) stubOpt {
	return func(cfg *provider.Config) { cfg.Domains = d }
}

func newStub(t *testing.T, name string, capability model.Capability, priority int, fetch provider.FetchFunc, opts ...stubOpt) *stubProvider {
	t.Helper()
	kind := provider.KindHTTP
	if capability.IsAI() {
		kind = provider.KindAnthropic
	}
	cfg := provider.Config{
		Name:       name,
		Kind:       kind,
		Capability: capability,
		Priority:   priority,
	}
	for _, o := range opts {
		o(&cfg)
	}
	b, err := provider.NewBase(cfg)
	require.NoError(t, err)
	return &stubProvider{Base: b, fetch: fetch}
}

func recordWith(confidence float64) *model.ExtractedRecord {
	return &model.ExtractedRecord{
		Name:       "Jane Doe",
		Confidence: model.FieldConfidence{Name: confidence},
	}
}

// succeeds returns a fetch producing a record scored at confidence.
func succeeds(confidence, cost float64) provider.FetchFunc {
	return func(context.Context, model.ScrapeRequest) (*provider.Outcome, error) {
		return &provider.Outcome{Record: recordWith(confidence), Cost: cost}, nil
	}
}

// fails returns a fetch that always fails with kind.
func fails(kind model.ErrorKind, cost float64) provider.FetchFunc {
	return func(context.Context, model.ScrapeRequest) (*provider.Outcome, error) {
		return &provider.Outcome{Cost: cost}, model.NewScrapeError(kind, "scripted failure", nil)
	}
}

// failsThenSucceeds fails n times with kind, then succeeds.
func failsThenSucceeds(n int, kind model.ErrorKind, confidence float64) provider.FetchFunc {
	var count atomic.Int32
	return func(context.Context, model.ScrapeRequest) (*provider.Outcome, error) {
		if int(count.Add(1)) <= n {
			return nil, model.NewScrapeError(kind, "scripted failure", nil)
		}
		return &provider.Outcome{Record: recordWith(confidence)}, nil
	}
}

// blocksUntilCancelled waits for the attempt context to end.
func blocksUntilCancelled(started chan<- struct{}) provider.FetchFunc {
	return func(ctx context.Context, _ model.ScrapeRequest) (*provider.Outcome, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts: 3,
		Strategy:    resilience.StrategyFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg Config, tracker *usage.Tracker, providers ...provider.Provider) *Orchestrator {
	t.Helper()
	o := New(cfg, tracker)
	for _, p := range providers {
		require.NoError(t, o.Register(p))
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func request(path string) model.ScrapeRequest {
	return model.ScrapeRequest{URL: "https://example.com/" + path}
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	attempts []string
	skips    []string
	hits     int
	finished int
}

func (r *recordingObserver) AttemptFinished(name string, _ *model.ScrapeResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, name)
}

func (r *recordingObserver) ProviderSkipped(name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, name+":"+reason)
}

func (r *recordingObserver) CacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recordingObserver) RequestFinished(*model.ScrapeResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
}
