package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
)

// Outcome is what a backend's fetch step produces.
type Outcome struct {
	Record *model.ExtractedRecord
	Tokens model.TokenUsage
	Cost   float64
}

// FetchFunc performs the backend I/O for one attempt.
type FetchFunc func(ctx context.Context, req model.ScrapeRequest) (*Outcome, error)

// EstimateFunc returns the expected cost of a request.
type EstimateFunc func(req model.ScrapeRequest) float64

// Base holds the state every provider shares: configuration, the per-minute
// limiter, an optional cost ledger and running counters. Concrete providers
// compose a *Base and hand their I/O to Run.
type Base struct {
	mu       sync.RWMutex
	cfg      Config
	enabled  bool
	limiter  *RateLimiter
	ledger   *CostLedger
	estimate EstimateFunc
	nowFunc  func() time.Time

	requests, successes, failures, refused, abandoned int64
	totalLatency                                      time.Duration
	totalConfidence                                   float64
	lastError                                         string
	lastUsed                                          time.Time
}

// BaseOption configures a Base.
type BaseOption func(*Base)

// WithClock injects a clock for rate and quota windows.
func WithClock(now func() time.Time) BaseOption {
	return func(b *Base) { b.nowFunc = now }
}

// WithEstimator overrides the flat CostPerRequest estimate.
func WithEstimator(fn EstimateFunc) BaseOption {
	return func(b *Base) { b.estimate = fn }
}

// NewBase validates cfg and builds the shared provider state. A cost ledger is
// attached when the config carries any quota or cost ceiling.
func NewBase(cfg Config, opts ...BaseOption) (*Base, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	b := &Base{cfg: cfg, enabled: cfg.IsEnabled(), nowFunc: time.Now}
	for _, o := range opts {
		o(b)
	}
	b.limiter = NewRateLimiter(cfg.RateLimit, b.nowFunc)
	if cfg.CostAware() {
		b.ledger = NewCostLedger(LedgerConfig{
			DailyRequestQuota: cfg.DailyRequestQuota,
			DailyTokenQuota:   cfg.DailyTokenQuota,
			DailyCostLimit:    cfg.DailyCostLimit,
			MonthlyCostLimit:  cfg.MonthlyCostLimit,
		}, b.nowFunc)
	}
	if b.estimate == nil {
		b.estimate = func(model.ScrapeRequest) float64 { return cfg.CostPerRequest }
	}
	return b, nil
}

// Name returns the provider key.
func (b *Base) Name() string { return b.cfg.Name }

// Capability returns the provider's capability tag.
func (b *Base) Capability() model.Capability { return b.cfg.Capability }

// Config returns a snapshot of the configuration.
func (b *Base) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := b.cfg
	enabled := b.enabled
	c.Enabled = &enabled
	return c
}

// Ledger returns the cost ledger, or nil for providers without ceilings.
func (b *Base) Ledger() *CostLedger { return b.ledger }

func (b *Base) isEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// CanHandle implements Provider.
func (b *Base) CanHandle(rawURL string) bool {
	if !b.isEnabled() {
		return false
	}
	return hostMatches(rawURL, b.cfg.Domains)
}

// CheckRateLimit implements Provider.
func (b *Base) CheckRateLimit() bool {
	if !b.limiter.Peek() {
		return false
	}
	if b.ledger != nil && b.ledger.Admit(b.estimate(model.ScrapeRequest{})) != nil {
		return false
	}
	return true
}

// EstimateCost implements Provider.
func (b *Base) EstimateCost(req model.ScrapeRequest) float64 {
	return b.estimate(req)
}

// SetEnabled implements Provider.
func (b *Base) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// SetPriority implements Provider.
func (b *Base) SetPriority(priority int) error {
	if priority < 1 || priority > 10 {
		return eris.Errorf("provider %q: priority %d out of range 1-10", b.cfg.Name, priority)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Priority = priority
	return nil
}

// SetRateLimit implements Provider.
func (b *Base) SetRateLimit(perMinute int) error {
	if perMinute < 0 {
		return eris.Errorf("provider %q: negative rate limit %d", b.cfg.Name, perMinute)
	}
	b.mu.Lock()
	b.cfg.RateLimit = perMinute
	b.mu.Unlock()
	b.limiter.SetLimit(perMinute)
	return nil
}

// Status implements Provider.
func (b *Base) Status() Status {
	b.mu.RLock()
	s := Status{
		Name:       b.cfg.Name,
		Kind:       b.cfg.Kind,
		Capability: b.cfg.Capability,
		Enabled:    b.enabled,
		Priority:   b.cfg.Priority,
		RateLimit:  b.cfg.RateLimit,
		Requests:   b.requests,
		Successes:  b.successes,
		Failures:   b.failures,
		Refused:    b.refused,
		Abandoned:  b.abandoned,
		LastError:  b.lastError,
		LastUsed:   b.lastUsed,
	}
	if b.requests > 0 {
		s.AvgLatency = b.totalLatency / time.Duration(b.requests)
	}
	if b.successes > 0 {
		s.AvgConfidence = b.totalConfidence / float64(b.successes)
	}
	b.mu.RUnlock()

	s.RateRemaining = b.limiter.Remaining()
	s.RateResetAt = b.limiter.ResetAt()
	if b.ledger != nil {
		ls := b.ledger.Status()
		s.Ledger = &ls
	}
	return s
}

// refuse builds a pre-flight refusal. Refusals never count as requests.
func (b *Base) refuse(err *model.ScrapeError) *model.ScrapeResponse {
	b.mu.Lock()
	b.refused++
	b.mu.Unlock()

	resp := model.Failed(b.cfg.Name, err.WithProvider(b.cfg.Name))
	resp.Metadata.Timestamp = b.nowFunc().UTC()
	return resp
}

// Run executes one attempt: pre-flight gates, timed I/O, error
// classification, record scoring and counter updates.
func (b *Base) Run(ctx context.Context, req model.ScrapeRequest, fetch FetchFunc) *model.ScrapeResponse {
	name := b.cfg.Name

	if !b.isEnabled() {
		return b.refuse(model.NewScrapeError(model.KindConfiguration, "provider disabled", nil))
	}
	if !b.limiter.Allow() {
		return b.refuse(model.NewScrapeError(model.KindRateLimit, "rate limit reached", nil))
	}
	estimate := b.estimate(req)
	if b.ledger != nil {
		if err := b.ledger.Admit(estimate); err != nil {
			return b.refuse(err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := b.nowFunc()
	out, err := b.safeFetch(ctx, req, fetch)
	elapsed := b.nowFunc().Sub(start)

	resp := &model.ScrapeResponse{
		Provider: name,
		Duration: elapsed,
		Metadata: model.Metadata{
			Timestamp:          start.UTC(),
			ProvidersAttempted: []string{name},
			AttemptCount:       1,
		},
	}
	if out != nil {
		resp.Metadata.Cost = out.Cost
		resp.Metadata.Tokens = out.Tokens
		resp.Metadata.Tokens.Cost = out.Cost
	}

	if err == nil && (out == nil || out.Record == nil) {
		err = model.NewScrapeError(model.KindExtraction, "no record extracted", nil)
	}
	if err == nil {
		if conf := model.ScoreRecord(out.Record); conf > 0 {
			out.Record.Confidence.Overall = conf
			if out.Record.SourceURL == "" {
				out.Record.SourceURL = req.URL
			}
			resp.Success = true
			resp.Record = out.Record
			resp.Confidence = conf
		} else {
			err = model.NewScrapeError(model.KindExtraction, "no contact fields found", nil)
		}
	}
	if err != nil {
		resp.Error = ClassifyError(err).WithProvider(name)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && resp.Error.Kind != model.KindTimeout {
			resp.Error = model.NewScrapeError(model.KindTimeout, "attempt timed out after "+timeout.String(), err).WithProvider(name)
		}
	}

	if b.ledger != nil && out != nil {
		b.ledger.Record(out.Cost, out.Tokens.Total())
	}
	if !resp.Success && errors.Is(ctx.Err(), context.Canceled) {
		// The caller walked away; the backend did not fail.
		b.mu.Lock()
		b.abandoned++
		b.mu.Unlock()
		zap.L().Debug("provider: attempt abandoned",
			zap.String("provider", name),
			zap.String("url", req.URL),
			zap.Duration("duration", elapsed),
		)
		return resp
	}
	b.recordAttempt(resp, elapsed)

	if resp.Success {
		zap.L().Debug("provider: attempt succeeded",
			zap.String("provider", name),
			zap.String("url", req.URL),
			zap.Float64("confidence", resp.Confidence),
			zap.Duration("duration", elapsed),
		)
	} else {
		zap.L().Debug("provider: attempt failed",
			zap.String("provider", name),
			zap.String("url", req.URL),
			zap.String("kind", string(resp.Error.Kind)),
			zap.Error(resp.Error),
		)
	}
	return resp
}

// safeFetch converts a panicking backend into an error.
func (b *Base) safeFetch(ctx context.Context, req model.ScrapeRequest, fetch FetchFunc) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = model.NewScrapeError(model.KindUnknown, "provider panicked", eris.Errorf("%v", r))
		}
	}()
	return fetch(ctx, req)
}

func (b *Base) recordAttempt(resp *model.ScrapeResponse, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	b.totalLatency += elapsed
	b.lastUsed = b.nowFunc()
	if resp.Success {
		b.successes++
		b.totalConfidence += resp.Confidence
		return
	}
	b.failures++
	b.lastError = resp.Error.Error()
}
