package usage

import (
	"sort"
	"time"
)

// SessionStats covers everything tracked since the tracker started or was reset.
type SessionStats struct {
	Started     time.Time `json:"started"`
	Requests    int64     `json:"requests"`
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	SuccessRate float64   `json:"success_rate"`
	Cost        float64   `json:"cost"`
	Tokens      int64     `json:"tokens"`
}

// ProviderStats is one provider's running statistics.
type ProviderStats struct {
	Name           string        `json:"name"`
	Requests       int64         `json:"requests"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	SuccessRate    float64       `json:"success_rate"`
	Cost           float64       `json:"cost"`
	Tokens         int64         `json:"tokens"`
	CostPerRequest float64       `json:"cost_per_request"`
	AvgLatency     time.Duration `json:"avg_latency"`
	AvgConfidence  float64       `json:"avg_confidence"`
	Today          Period        `json:"today"`
	Quota          *Quota        `json:"quota,omitempty"`
	LastUsed       time.Time     `json:"last_used"`
}

// Summary is a full snapshot of tracked usage.
type Summary struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Session     SessionStats             `json:"session"`
	Windows     map[Window]Period        `json:"windows"`
	Providers   map[string]ProviderStats `json:"providers"`
}

// Summary returns a consistent snapshot of all windows and providers.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()
	t.roll(now)
	return t.summary(now)
}

// must hold mu
func (t *Tracker) summary(now time.Time) Summary {
	s := Summary{
		GeneratedAt: now.UTC(),
		Session: SessionStats{
			Started:   t.session.started,
			Requests:  t.session.requests,
			Successes: t.session.successes,
			Failures:  t.session.failures,
			Cost:      t.session.cost.InexactFloat64(),
			Tokens:    t.session.tokens,
		},
		Windows:   make(map[Window]Period, len(t.windows)),
		Providers: make(map[string]ProviderStats, len(t.providers)),
	}
	if s.Session.Requests > 0 {
		s.Session.SuccessRate = float64(s.Session.Successes) / float64(s.Session.Requests)
	}
	for _, w := range AllWindows() {
		s.Windows[w] = t.windows[w].snapshot(w, t.cfg.Budget(w))
	}
	for name, ps := range t.providers {
		s.Providers[name] = t.providerStats(name, ps)
	}
	return s
}

// must hold mu
func (t *Tracker) providerStats(name string, ps *providerStats) ProviderStats {
	st := ProviderStats{
		Name:      name,
		Requests:  ps.requests,
		Successes: ps.successes,
		Failures:  ps.failures,
		Cost:      ps.cost.InexactFloat64(),
		Tokens:    ps.tokens,
		Today:     ps.day.snapshot(WindowDaily, 0),
		LastUsed:  ps.lastUsed,
	}
	if ps.requests > 0 {
		st.SuccessRate = float64(ps.successes) / float64(ps.requests)
	}
	if n := len(ps.costs); n > 0 {
		var sum float64
		for _, c := range ps.costs {
			sum += c
		}
		st.CostPerRequest = sum / float64(n)
	}
	if n := len(ps.latencies); n > 0 {
		var sum time.Duration
		for _, l := range ps.latencies {
			sum += l
		}
		st.AvgLatency = sum / time.Duration(n)
	}
	if n := len(ps.confidences); n > 0 {
		var sum float64
		for _, c := range ps.confidences {
			sum += c
		}
		st.AvgConfidence = sum / float64(n)
	}
	if q, ok := t.cfg.Quotas[name]; ok {
		st.Quota = &q
	}
	return st
}

// QuotaForecast projects when a provider's daily quota runs out. Hours are
// -1 when the ceiling is unset or nothing has been used yet.
type QuotaForecast struct {
	Provider          string  `json:"provider"`
	RequestsPerHour   float64 `json:"requests_per_hour"`
	TokensPerHour     float64 `json:"tokens_per_hour"`
	HoursToRequestCap float64 `json:"hours_to_request_cap"`
	HoursToTokenCap   float64 `json:"hours_to_token_cap"`
}

// Forecast extrapolates today's hourly spend rate. HoursToDailyBudget is -1
// without a daily budget or spend.
type Forecast struct {
	GeneratedAt        time.Time       `json:"generated_at"`
	HoursElapsed       float64         `json:"hours_elapsed"`
	HourlyRate         float64         `json:"hourly_rate"`
	ProjectedDaily     float64         `json:"projected_daily"`
	ProjectedWeekly    float64         `json:"projected_weekly"`
	ProjectedMonthly   float64         `json:"projected_monthly"`
	HoursToDailyBudget float64         `json:"hours_to_daily_budget"`
	Quotas             []QuotaForecast `json:"quotas,omitempty"`
}

// Forecast projects spend from the current day's hourly rate: hourlyRate is
// today's cost over the hours elapsed since UTC midnight, floored at one hour.
func (t *Tracker) Forecast() Forecast {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()
	t.roll(now)
	return t.forecast(now)
}

// must hold mu
func (t *Tracker) forecast(now time.Time) Forecast {
	dayStart := WindowDaily.Start(now)
	hours := max(now.Sub(dayStart).Hours(), 1)
	spent := t.windows[WindowDaily].cost.InexactFloat64()
	rate := spent / hours

	monthStart := WindowMonthly.Start(now)
	daysInMonth := WindowMonthly.End(monthStart).Sub(monthStart).Hours() / 24

	f := Forecast{
		GeneratedAt:        now.UTC(),
		HoursElapsed:       hours,
		HourlyRate:         rate,
		ProjectedDaily:     rate * 24,
		ProjectedWeekly:    rate * 24 * 7,
		ProjectedMonthly:   rate * 24 * daysInMonth,
		HoursToDailyBudget: -1,
	}
	if b := t.cfg.DailyBudget; b > 0 && rate > 0 {
		f.HoursToDailyBudget = max(0, (b-spent)/rate)
	}

	names := make([]string, 0, len(t.cfg.Quotas))
	for name := range t.cfg.Quotas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q := t.cfg.Quotas[name]
		qf := QuotaForecast{Provider: name, HoursToRequestCap: -1, HoursToTokenCap: -1}
		if ps, ok := t.providers[name]; ok {
			qf.RequestsPerHour = float64(ps.day.requests) / hours
			qf.TokensPerHour = float64(ps.day.tokens) / hours
			if q.DailyRequests > 0 && qf.RequestsPerHour > 0 {
				qf.HoursToRequestCap = max(0, float64(int64(q.DailyRequests)-ps.day.requests)/qf.RequestsPerHour)
			}
			if q.DailyTokens > 0 && qf.TokensPerHour > 0 {
				qf.HoursToTokenCap = max(0, float64(int64(q.DailyTokens)-ps.day.tokens)/qf.TokensPerHour)
			}
		}
		f.Quotas = append(f.Quotas, qf)
	}
	return f
}

// Dashboard bundles the summary with utilization, forecast and alerts.
type Dashboard struct {
	Summary      Summary            `json:"summary"`
	Utilization  map[Window]float64 `json:"utilization"`
	Forecast     Forecast           `json:"forecast"`
	TopProviders []ProviderStats    `json:"top_providers"`
	RecentAlerts []Alert            `json:"recent_alerts"`
}

const dashboardAlerts = 10

// Dashboard returns a snapshot for display. Utilization is spent/budget as a
// percentage for windows with a budget; providers are ordered by spend.
func (t *Tracker) Dashboard() Dashboard {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()
	t.roll(now)

	d := Dashboard{
		Summary:     t.summary(now),
		Utilization: make(map[Window]float64),
		Forecast:    t.forecast(now),
	}
	for _, w := range AllWindows() {
		if b := t.cfg.Budget(w); b > 0 {
			d.Utilization[w] = t.windows[w].cost.InexactFloat64() / b * 100
		}
	}
	for _, ps := range d.Summary.Providers {
		d.TopProviders = append(d.TopProviders, ps)
	}
	sort.Slice(d.TopProviders, func(i, j int) bool {
		a, b := d.TopProviders[i], d.TopProviders[j]
		if a.Cost != b.Cost {
			return a.Cost > b.Cost
		}
		return a.Name < b.Name
	})
	start := max(0, len(t.alerts)-dashboardAlerts)
	d.RecentAlerts = append([]Alert{}, t.alerts[start:]...)
	return d
}

// HistoryFilter selects history records. Zero fields match everything.
type HistoryFilter struct {
	Provider    string
	Since       time.Time
	Until       time.Time
	SuccessOnly bool
	FailureOnly bool
	// Limit keeps only the most recent matches.
	Limit int
}

// History returns matching records, oldest first. It is empty unless
// history tracking is enabled.
func (t *Tracker) History(f HistoryFilter) []HistoryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []HistoryRecord
	for _, r := range t.history {
		if f.Provider != "" && r.Provider != f.Provider {
			continue
		}
		if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
			continue
		}
		if f.SuccessOnly && !r.Success || f.FailureOnly && r.Success {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}
