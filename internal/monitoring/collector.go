package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/profile-enricher/internal/usage"
)

// UsageCollector exposes the tracker's windows and per-provider daily usage
// as gauges, read from a fresh Summary on every scrape.
type UsageCollector struct {
	tracker *usage.Tracker

	windowCost     *prometheus.Desc
	windowRequests *prometheus.Desc
	windowBudget   *prometheus.Desc
	providerDaily  *prometheus.Desc
	providerTokens *prometheus.Desc
}

var _ prometheus.Collector = (*UsageCollector)(nil)

// NewUsageCollector creates a collector over tracker.
func NewUsageCollector(tracker *usage.Tracker) *UsageCollector {
	return &UsageCollector{
		tracker: tracker,
		windowCost: prometheus.NewDesc("enricher_usage_window_cost_usd",
			"Spend in the current usage window.", []string{"window"}, nil),
		windowRequests: prometheus.NewDesc("enricher_usage_window_requests",
			"Provider attempts in the current usage window.", []string{"window"}, nil),
		windowBudget: prometheus.NewDesc("enricher_usage_window_budget_usd",
			"Configured budget for the usage window.", []string{"window"}, nil),
		providerDaily: prometheus.NewDesc("enricher_usage_provider_daily_requests",
			"Attempts per provider since UTC midnight.", []string{"provider"}, nil),
		providerTokens: prometheus.NewDesc("enricher_usage_provider_daily_tokens",
			"Tokens per provider since UTC midnight.", []string{"provider"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *UsageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.windowCost
	ch <- c.windowRequests
	ch <- c.windowBudget
	ch <- c.providerDaily
	ch <- c.providerTokens
}

// Collect implements prometheus.Collector.
func (c *UsageCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracker.Summary()
	for _, w := range usage.AllWindows() {
		p := s.Windows[w]
		ch <- prometheus.MustNewConstMetric(c.windowCost, prometheus.GaugeValue, p.Cost, string(w))
		ch <- prometheus.MustNewConstMetric(c.windowRequests, prometheus.GaugeValue, float64(p.Requests), string(w))
		if p.Budget > 0 {
			ch <- prometheus.MustNewConstMetric(c.windowBudget, prometheus.GaugeValue, p.Budget, string(w))
		}
	}
	for name, ps := range s.Providers {
		ch <- prometheus.MustNewConstMetric(c.providerDaily, prometheus.GaugeValue, float64(ps.Today.Requests), name)
		ch <- prometheus.MustNewConstMetric(c.providerTokens, prometheus.GaugeValue, float64(ps.Today.Tokens), name)
	}
}
