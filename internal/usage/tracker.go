// Package usage tracks requests, spend and tokens across calendar windows and
// providers, gates new work against budgets and quotas, raises threshold
// alerts and forecasts spend.
package usage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
)

// Quota is a provider's free-tier daily allowance. Zero disables a ceiling.
type Quota struct {
	DailyRequests int `yaml:"daily_requests" mapstructure:"daily_requests" json:"daily_requests"`
	DailyTokens   int `yaml:"daily_tokens" mapstructure:"daily_tokens" json:"daily_tokens"`
}

// Config holds budgets, quotas and alerting thresholds.
type Config struct {
	DailyBudget   float64 `yaml:"daily_budget" mapstructure:"daily_budget"`
	WeeklyBudget  float64 `yaml:"weekly_budget" mapstructure:"weekly_budget"`
	MonthlyBudget float64 `yaml:"monthly_budget" mapstructure:"monthly_budget"`
	YearlyBudget  float64 `yaml:"yearly_budget" mapstructure:"yearly_budget"`

	Quotas map[string]Quota `yaml:"quotas" mapstructure:"quotas"`

	WarningThreshold  float64 `yaml:"warning_threshold" mapstructure:"warning_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold" mapstructure:"critical_threshold"`

	TrackHistory     bool          `yaml:"track_history" mapstructure:"track_history"`
	HistoryRetention time.Duration `yaml:"history_retention" mapstructure:"history_retention"`
	MaxHistory       int           `yaml:"max_history" mapstructure:"max_history"`

	NotifyTimeout time.Duration `yaml:"notify_timeout" mapstructure:"notify_timeout"`
}

// Defaults applied by NewTracker to unset fields.
const (
	DefaultWarningThreshold  = 0.80
	DefaultCriticalThreshold = 0.95
	DefaultHistoryRetention  = 30 * 24 * time.Hour
	DefaultMaxHistory        = 10000
	DefaultNotifyTimeout     = 10 * time.Second

	// sampleCap bounds the rolling latency/confidence/cost samples per provider.
	sampleCap = 100
	alertCap  = 100
)

func (c Config) withDefaults() Config {
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = DefaultCriticalThreshold
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = DefaultHistoryRetention
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	return c
}

// Budget returns the configured ceiling for w, or 0.
func (c Config) Budget(w Window) float64 {
	switch w {
	case WindowDaily:
		return c.DailyBudget
	case WindowWeekly:
		return c.WeeklyBudget
	case WindowMonthly:
		return c.MonthlyBudget
	case WindowYearly:
		return c.YearlyBudget
	}
	return 0
}

// HistoryRecord is one tracked attempt.
type HistoryRecord struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Provider   string          `json:"provider"`
	URL        string          `json:"url"`
	Success    bool            `json:"success"`
	Confidence float64         `json:"confidence"`
	Cost       float64         `json:"cost"`
	Tokens     int             `json:"tokens"`
	Duration   time.Duration   `json:"duration"`
	ErrorKind  model.ErrorKind `json:"error_kind,omitempty"`
}

type providerStats struct {
	requests, successes, failures int64
	cost                          decimal.Decimal
	tokens                        int64
	latencies                     []time.Duration
	confidences                   []float64
	costs                         []float64
	day                           period
	lastUsed                      time.Time
}

func pushCapped[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > sampleCap {
		s = s[len(s)-sampleCap:]
	}
	return s
}

type session struct {
	started                       time.Time
	requests, successes, failures int64
	cost                          decimal.Decimal
	tokens                        int64
}

// Tracker is the process-wide usage ledger. It is safe for concurrent use.
// Windows roll over lazily on every read and write, and on Tick.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	nowFunc   func() time.Time
	notifier  Notifier
	session   session
	windows   map[Window]*period
	reserved  decimal.Decimal
	providers map[string]*providerStats
	history   []HistoryRecord
	alerts    []Alert
	fired     map[string]Severity
	pending   sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotifier sets the sink alerts are dispatched to.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithClock injects the clock used for windows and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.nowFunc = now }
}

// NewTracker creates a Tracker.
func NewTracker(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg.withDefaults(),
		nowFunc:   time.Now,
		windows:   make(map[Window]*period, 4),
		providers: make(map[string]*providerStats),
		fired:     make(map[string]Severity),
	}
	for _, o := range opts {
		o(t)
	}
	now := t.nowFunc()
	t.session.started = now.UTC()
	for _, w := range AllWindows() {
		t.windows[w] = &period{start: w.Start(now)}
	}
	return t
}

// Config returns the tracker's effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// must hold mu
func (t *Tracker) provider(name string) *providerStats {
	ps, ok := t.providers[name]
	if !ok {
		ps = &providerStats{day: period{start: WindowDaily.Start(t.nowFunc())}}
		t.providers[name] = ps
	}
	return ps
}

// roll resets every window whose boundary has passed.
// must hold mu
func (t *Tracker) roll(now time.Time) {
	for _, w := range AllWindows() {
		p := t.windows[w]
		start := w.Start(now)
		if !start.After(p.start) {
			continue
		}
		zap.L().Info("usage: window reset",
			zap.String("window", string(w)),
			zap.Float64("cost", p.cost.InexactFloat64()),
			zap.Int64("requests", p.requests),
		)
		p.reset(start)
		delete(t.fired, budgetSubject(w))
	}

	day := WindowDaily.Start(now)
	for name, ps := range t.providers {
		if day.After(ps.day.start) {
			ps.day.reset(day)
			delete(t.fired, quotaSubject(name, "requests"))
			delete(t.fired, quotaSubject(name, "tokens"))
		}
	}
}

// TrackRequest records one provider attempt. It must be called exactly once
// per attempt, whatever its outcome.
func (t *Tracker) TrackRequest(providerName string, req model.ScrapeRequest, resp *model.ScrapeResponse) {
	if resp == nil {
		return
	}
	cost := decimal.NewFromFloat(resp.Metadata.Cost)
	tokens := resp.Metadata.Tokens.Total()

	t.mu.Lock()
	now := t.nowFunc()
	t.roll(now)

	t.session.requests++
	if resp.Success {
		t.session.successes++
	} else {
		t.session.failures++
	}
	t.session.cost = t.session.cost.Add(cost)
	t.session.tokens += int64(tokens)

	for _, w := range AllWindows() {
		t.windows[w].add(resp.Success, cost, tokens)
	}

	ps := t.provider(providerName)
	ps.requests++
	if resp.Success {
		ps.successes++
		ps.confidences = pushCapped(ps.confidences, resp.Confidence)
	} else {
		ps.failures++
	}
	ps.cost = ps.cost.Add(cost)
	ps.tokens += int64(tokens)
	ps.latencies = pushCapped(ps.latencies, resp.Duration)
	ps.costs = pushCapped(ps.costs, resp.Metadata.Cost)
	ps.day.add(resp.Success, cost, tokens)
	ps.lastUsed = now

	if t.cfg.TrackHistory {
		t.appendHistory(now, providerName, req, resp, tokens)
	}

	fired := t.evaluate(now, providerName)
	t.mu.Unlock()

	t.dispatch(fired)
}

// must hold mu
func (t *Tracker) appendHistory(now time.Time, providerName string, req model.ScrapeRequest, resp *model.ScrapeResponse, tokens int) {
	rec := HistoryRecord{
		ID:         uuid.New().String(),
		RequestID:  resp.Metadata.RequestID,
		Timestamp:  now.UTC(),
		Provider:   providerName,
		URL:        req.URL,
		Success:    resp.Success,
		Confidence: resp.Confidence,
		Cost:       resp.Metadata.Cost,
		Tokens:     tokens,
		Duration:   resp.Duration,
	}
	if resp.Error != nil {
		rec.ErrorKind = resp.Error.Kind
	}
	t.history = append(t.history, rec)

	cutoff := now.Add(-t.cfg.HistoryRetention)
	drop := 0
	for drop < len(t.history) && t.history[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if over := len(t.history) - drop - t.cfg.MaxHistory; over > 0 {
		drop += over
	}
	if drop > 0 {
		t.history = append([]HistoryRecord(nil), t.history[drop:]...)
	}
}

// Tick rolls windows over at now. The Scheduler calls it periodically so
// resets happen even while no requests arrive.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)
}

// Reset clears the named windows, or all usage state when none are given.
func (t *Tracker) Reset(windows ...Window) error {
	for _, w := range windows {
		if _, err := ParseWindow(string(w)); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()

	if len(windows) == 0 {
		for _, w := range AllWindows() {
			t.windows[w].reset(w.Start(now))
		}
		t.session = session{started: now.UTC()}
		t.providers = make(map[string]*providerStats)
		t.history = nil
		t.alerts = nil
		t.fired = make(map[string]Severity)
		zap.L().Info("usage: all usage reset")
		return nil
	}

	for _, w := range windows {
		t.windows[w].reset(w.Start(now))
		delete(t.fired, budgetSubject(w))
		if w == WindowDaily {
			day := WindowDaily.Start(now)
			for name, ps := range t.providers {
				ps.day.reset(day)
				delete(t.fired, quotaSubject(name, "requests"))
				delete(t.fired, quotaSubject(name, "tokens"))
			}
		}
		zap.L().Info("usage: window reset by request", zap.String("window", string(w)))
	}
	return nil
}

// Wait blocks until in-flight alert notifications finish.
func (t *Tracker) Wait() {
	t.pending.Wait()
}
