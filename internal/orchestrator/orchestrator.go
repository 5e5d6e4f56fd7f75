// Package orchestrator selects, sequences and pays for extraction providers:
// it scores applicable providers per request, runs the fallback chain with
// retries, caches accepted responses and gates every attempt on the usage
// budget.
package orchestrator

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/provider"
	"github.com/sells-group/profile-enricher/internal/usage"
)

// ErrClosed is returned by Scrape after Close.
var ErrClosed = errors.New("orchestrator closed")

// Observer receives notifications about attempts and requests. Calls are
// synchronous and must not block.
type Observer interface {
	AttemptFinished(provider string, resp *model.ScrapeResponse)
	ProviderSkipped(provider, reason string)
	CacheHit()
	RequestFinished(resp *model.ScrapeResponse)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string, *model.ScrapeResponse) {}
func (nopObserver) ProviderSkipped(string, string)                {}
func (nopObserver) CacheHit()                                     {}
func (nopObserver) RequestFinished(*model.ScrapeResponse)         {}

// Orchestrator owns the provider registry, per-provider metrics and the
// response cache. It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	tracker  *usage.Tracker
	registry *registry
	cache    *responseCache
	observer Observer
	nowFunc  func() time.Time

	mu      sync.Mutex
	metrics map[string]*providerMetrics
	session *sessionMetrics

	// life orders Scrape's entry into pending against Close's Wait.
	life    sync.RWMutex
	pending sync.WaitGroup
	closed  atomic.Bool
}

// enter registers an in-flight Scrape with pending, or reports false once
// Close has begun. Every goroutine a Scrape spawns is added while its own
// entry is still held.
func (o *Orchestrator) enter() bool {
	o.life.RLock()
	defer o.life.RUnlock()
	if o.closed.Load() {
		return false
	}
	o.pending.Add(1)
	return true
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for attempts and requests.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithNow injects the clock used for cache expiry and durations.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFunc = now }
}

// New creates an Orchestrator. A nil tracker gets an unlimited one.
func New(cfg Config, tracker *usage.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		tracker:  tracker,
		registry: newRegistry(),
		observer: nopObserver{},
		nowFunc:  time.Now,
		metrics:  make(map[string]*providerMetrics),
		session:  newSessionMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracker == nil {
		o.tracker = usage.NewTracker(usage.Config{}, usage.WithClock(o.nowFunc))
	}
	o.cache = newResponseCache(o.cfg.CacheTTL, o.cfg.CacheMaxEntries)
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Tracker returns the usage tracker consulted before every attempt.
func (o *Orchestrator) Tracker() *usage.Tracker {
	return o.tracker
}

// Register adds a provider.
func (o *Orchestrator) Register(p provider.Provider) error {
	if err := o.registry.add(p); err != nil {
		return err
	}
	o.mu.Lock()
	o.metrics[p.Name()] = &providerMetrics{}
	o.mu.Unlock()

	zap.L().Info("orchestrator: provider registered",
		zap.String("provider", p.Name()),
		zap.String("capability", string(p.Capability())),
		zap.Int("priority", p.Config().Priority),
	)
	return nil
}

// Unregister removes a provider and its metrics.
func (o *Orchestrator) Unregister(name string) error {
	if err := o.registry.remove(name); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.metrics, name)
	o.mu.Unlock()
	zap.L().Info("orchestrator: provider unregistered", zap.String("provider", name))
	return nil
}

// Provider returns a registered provider by name.
func (o *Orchestrator) Provider(name string) (provider.Provider, error) {
	return o.registry.get(name)
}

// Providers returns all registered providers in registration order.
func (o *Orchestrator) Providers() []provider.Provider {
	return o.registry.list()
}

// Enable turns a provider on.
func (o *Orchestrator) Enable(name string) error {
	return o.setEnabled(name, true)
}

// Disable turns a provider off. Disabled providers are never selected.
func (o *Orchestrator) Disable(name string) error {
	return o.setEnabled(name, false)
}

func (o *Orchestrator) setEnabled(name string, enabled bool) error {
	p, err := o.registry.get(name)
	if err != nil {
		return err
	}
	p.SetEnabled(enabled)
	zap.L().Info("orchestrator: provider toggled", zap.String("provider", name), zap.Bool("enabled", enabled))
	return nil
}

// SetPriority changes a provider's priority (1-10).
func (o *Orchestrator) SetPriority(name string, priority int) error {
	p, err := o.registry.get(name)
	if err != nil {
		return err
	}
	if err := p.SetPriority(priority); err != nil {
		return eris.Wrapf(err, "orchestrator: set priority of %q", name)
	}
	return nil
}

// SetRateLimit changes a provider's requests-per-minute limit.
func (o *Orchestrator) SetRateLimit(name string, perMinute int) error {
	p, err := o.registry.get(name)
	if err != nil {
		return err
	}
	if err := p.SetRateLimit(perMinute); err != nil {
		return eris.Wrapf(err, "orchestrator: set rate limit of %q", name)
	}
	return nil
}

// ProviderState combines a provider's own status with the orchestrator's metrics.
type ProviderState struct {
	provider.Status
	Metrics ProviderMetrics `json:"metrics"`
}

// Status is a snapshot of orchestrator health.
type Status struct {
	Mode                    Mode            `json:"mode"`
	Closed                  bool            `json:"closed"`
	Degraded                bool            `json:"degraded"`
	ConventionalFailureRate float64         `json:"conventional_failure_rate"`
	Providers               []ProviderState `json:"providers"`
	Session                 SessionMetrics  `json:"session"`
	Cache                   CacheStats      `json:"cache"`
}

// Status returns provider health, session aggregates and cache occupancy.
func (o *Orchestrator) Status() Status {
	providers := o.registry.list()
	rate, degraded := o.degradation(providers)
	st := Status{
		Mode:                    o.cfg.Mode,
		Closed:                  o.closed.Load(),
		Degraded:                degraded,
		ConventionalFailureRate: rate,
		Session:                 o.session.snapshot(),
		Cache:                   o.cache.stats(),
	}
	st.Cache.Enabled = o.cfg.CacheEnabled

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range providers {
		ps := ProviderState{Status: p.Status()}
		if m, ok := o.metrics[p.Name()]; ok {
			ps.Metrics = m.snapshot()
		}
		st.Providers = append(st.Providers, ps)
	}
	return st
}

// ClearCache drops every cached response and returns how many were removed.
func (o *Orchestrator) ClearCache() int {
	n := o.cache.clear()
	zap.L().Info("orchestrator: cache cleared", zap.Int("entries", n))
	return n
}

// Close stops accepting requests, waits for in-flight scrapes and abandoned
// race attempts to be accounted and for alert delivery, then clears the cache.
func (o *Orchestrator) Close() error {
	o.life.Lock()
	already := o.closed.Swap(true)
	o.life.Unlock()
	if already {
		return nil
	}
	o.pending.Wait()
	o.tracker.Wait()
	o.cache.clear()
	zap.L().Info("orchestrator: closed")
	return nil
}
