package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/profile-enricher/internal/model"
)

// ProviderMetrics is the orchestrator's view of one provider, updated once
// per chain-member attempt after its retries resolve.
type ProviderMetrics struct {
	Requests            int64         `json:"requests"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	SuccessRate         float64       `json:"success_rate"`
	AvgLatency          time.Duration `json:"avg_latency"`
	AvgConfidence       float64       `json:"avg_confidence"`
	TotalCost           float64       `json:"total_cost"`
	CostPerRequest      float64       `json:"cost_per_request"`
	LastError           string        `json:"last_error,omitempty"`
	LastUsed            time.Time     `json:"last_used,omitempty"`
}

type providerMetrics struct {
	requests, successes, failures int64
	consecutiveFailures           int
	totalLatency                  time.Duration
	totalConfidence               float64
	totalCost                     float64
	lastError                     string
	lastUsed                      time.Time
}

// successRate is 1 for a provider that has never been tried.
func (m *providerMetrics) successRate() float64 {
	if m.requests == 0 {
		return 1
	}
	return float64(m.successes) / float64(m.requests)
}

func (m *providerMetrics) avgLatency() time.Duration {
	if m.requests == 0 {
		return 0
	}
	return m.totalLatency / time.Duration(m.requests)
}

func (m *providerMetrics) avgConfidence() float64 {
	if m.successes == 0 {
		return 0
	}
	return m.totalConfidence / float64(m.successes)
}

func (m *providerMetrics) costPerRequest() (float64, bool) {
	if m.requests == 0 {
		return 0, false
	}
	return m.totalCost / float64(m.requests), true
}

func (m *providerMetrics) record(resp *model.ScrapeResponse, now time.Time) {
	m.requests++
	m.totalLatency += resp.Duration
	m.totalCost += resp.Metadata.Cost
	m.lastUsed = now
	if resp.Success {
		m.successes++
		m.consecutiveFailures = 0
		m.totalConfidence += resp.Confidence
		return
	}
	m.failures++
	m.consecutiveFailures++
	if resp.Error != nil {
		m.lastError = resp.Error.Error()
	}
}

func (m *providerMetrics) snapshot() ProviderMetrics {
	cpr, _ := m.costPerRequest()
	return ProviderMetrics{
		Requests:            m.requests,
		Successes:           m.successes,
		Failures:            m.failures,
		ConsecutiveFailures: m.consecutiveFailures,
		SuccessRate:         m.successRate(),
		AvgLatency:          m.avgLatency(),
		AvgConfidence:       m.avgConfidence(),
		TotalCost:           m.totalCost,
		CostPerRequest:      cpr,
		LastError:           m.lastError,
		LastUsed:            m.lastUsed,
	}
}

// SessionMetrics aggregates every request the orchestrator has served.
type SessionMetrics struct {
	Requests      int64    `json:"requests"`
	Successes     int64    `json:"successes"`
	Failures      int64    `json:"failures"`
	CacheHits     int64    `json:"cache_hits"`
	BudgetHalts   int64    `json:"budget_halts"`
	SuccessRate   float64  `json:"success_rate"`
	AvgConfidence float64  `json:"avg_confidence"`
	ProvidersUsed []string `json:"providers_used"`
	TotalCost     float64  `json:"total_cost"`
}

type sessionMetrics struct {
	mu              sync.Mutex
	requests        int64
	successes       int64
	failures        int64
	cacheHits       int64
	budgetHalts     int64
	totalConfidence float64
	providersUsed   map[string]struct{}
	totalCost       float64
}

func newSessionMetrics() *sessionMetrics {
	return &sessionMetrics{providersUsed: make(map[string]struct{})}
}

func (s *sessionMetrics) record(resp *model.ScrapeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.totalCost += resp.Metadata.Cost
	switch {
	case resp.Metadata.CacheHit:
		s.cacheHits++
		s.successes++
		s.totalConfidence += resp.Confidence
	case resp.Success:
		s.successes++
		s.totalConfidence += resp.Confidence
		s.providersUsed[resp.Provider] = struct{}{}
	default:
		s.failures++
		if resp.Metadata.BudgetExceeded {
			s.budgetHalts++
		}
	}
}

func (s *sessionMetrics) snapshot() SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := SessionMetrics{
		Requests:      s.requests,
		Successes:     s.successes,
		Failures:      s.failures,
		CacheHits:     s.cacheHits,
		BudgetHalts:   s.budgetHalts,
		ProvidersUsed: make([]string, 0, len(s.providersUsed)),
		TotalCost:     s.totalCost,
	}
	if s.requests > 0 {
		out.SuccessRate = float64(s.successes) / float64(s.requests)
	}
	if s.successes > 0 {
		out.AvgConfidence = s.totalConfidence / float64(s.successes)
	}
	for name := range s.providersUsed {
		out.ProvidersUsed = append(out.ProvidersUsed, name)
	}
	sort.Strings(out.ProvidersUsed)
	return out
}
