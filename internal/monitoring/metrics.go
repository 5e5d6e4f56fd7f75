package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/profile-enricher/internal/model"
)

// Outcome labels for attempts and requests.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCache   = "cache"
	OutcomeBudget  = "budget_exceeded"
)

// Metrics holds the Prometheus collectors for the orchestrator. It satisfies
// the orchestrator's Observer hooks.
type Metrics struct {
	Attempts  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	Cost      *prometheus.CounterVec
	Skips     *prometheus.CounterVec
	Requests  *prometheus.CounterVec
	CacheHits prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_provider_attempts_total",
			Help: "Provider attempts by outcome (success or error kind).",
		}, []string{"provider", "outcome"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_provider_latency_seconds",
			Help:    "Duration of provider attempts.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		Cost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_cost_usd_total",
			Help: "Spend attributed to each provider in USD.",
		}, []string{"provider"}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_provider_skips_total",
			Help: "Providers left out of a chain at attempt time.",
		}, []string{"provider", "reason"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_requests_total",
			Help: "Scrape requests by final outcome.",
		}, []string{"outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "enricher_cache_hits_total",
			Help: "Scrape requests answered from the response cache.",
		}),
	}
}

// AttemptFinished records one provider attempt.
func (m *Metrics) AttemptFinished(provider string, resp *model.ScrapeResponse) {
	if resp == nil {
		return
	}
	outcome := OutcomeSuccess
	if !resp.Success {
		outcome = string(model.KindUnknown)
		if resp.Error != nil {
			outcome = string(resp.Error.Kind)
		}
	}
	m.Attempts.WithLabelValues(provider, outcome).Inc()
	m.Latency.WithLabelValues(provider).Observe(resp.Duration.Seconds())
	if resp.Metadata.Cost > 0 {
		m.Cost.WithLabelValues(provider).Add(resp.Metadata.Cost)
	}
}

// ProviderSkipped records a provider dropped from a chain before I/O.
func (m *Metrics) ProviderSkipped(provider, reason string) {
	m.Skips.WithLabelValues(provider, reason).Inc()
}

// CacheHit records a request served from cache.
func (m *Metrics) CacheHit() {
	m.CacheHits.Inc()
}

// RequestFinished records the final outcome of a scrape request.
func (m *Metrics) RequestFinished(resp *model.ScrapeResponse) {
	if resp == nil {
		return
	}
	switch {
	case resp.Metadata.CacheHit:
		m.Requests.WithLabelValues(OutcomeCache).Inc()
	case resp.Success:
		m.Requests.WithLabelValues(OutcomeSuccess).Inc()
	case resp.Metadata.BudgetExceeded:
		m.Requests.WithLabelValues(OutcomeBudget).Inc()
	default:
		m.Requests.WithLabelValues(OutcomeFailure).Inc()
	}
}
