package orchestrator

import (
	"math"
	"sort"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/provider"
)

// ScoreBreakdown shows each weighted term of a provider's score.
type ScoreBreakdown struct {
	Priority            float64 `json:"priority"`
	SuccessRate         float64 `json:"success_rate"`
	ResponseTime        float64 `json:"response_time"`
	Cost                float64 `json:"cost"`
	ConsecutiveFailures float64 `json:"consecutive_failures"`
	Confidence          float64 `json:"confidence"`
	AIBoost             float64 `json:"ai_boost"`
}

// Total sums the terms.
func (b ScoreBreakdown) Total() float64 {
	return b.Priority + b.SuccessRate + b.ResponseTime + b.Cost + b.ConsecutiveFailures + b.Confidence + b.AIBoost
}

// Selection is one member of a fallback chain.
type Selection struct {
	Name           string            `json:"name"`
	Capability     model.Capability  `json:"capability"`
	Score          float64           `json:"score"`
	Breakdown      ScoreBreakdown    `json:"breakdown"`
	CostPerRequest float64           `json:"cost_per_request"`
	Threshold      float64           `json:"threshold"`
	Provider       provider.Provider `json:"-"`
}

// gated is an applicable provider that was left out of a chain because its own
// rate limit or cost ledger turned it away.
type gated struct {
	name   string
	kind   model.ErrorKind
	reason string
}

func gateOf(p provider.Provider) gated {
	st := p.Status()
	if st.RateLimit > 0 && st.RateRemaining == 0 {
		return gated{name: p.Name(), kind: model.KindRateLimit, reason: "rate limit reached"}
	}
	return gated{name: p.Name(), kind: model.KindQuotaExceeded, reason: "provider quota or cost ceiling reached"}
}

// SelectProviders returns the fallback chain Scrape would use for rawURL,
// without consuming any rate-limit capacity.
func (o *Orchestrator) SelectProviders(rawURL string) []Selection {
	chain, _ := o.selectChain(model.ScrapeRequest{URL: rawURL})
	return chain
}

// threshold returns the confidence bar for a capability.
func (o *Orchestrator) threshold(c model.Capability) float64 {
	if c.IsAI() {
		return o.cfg.AIConfidenceThreshold
	}
	return o.cfg.ConfidenceThreshold
}

// degradation returns the average failure rate of conventional providers that
// have been tried, and whether it exceeds the AI-preference threshold.
func (o *Orchestrator) degradation(providers []provider.Provider) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var sum float64
	var n int
	for _, p := range providers {
		if p.Capability().IsAI() {
			continue
		}
		m, ok := o.metrics[p.Name()]
		if !ok || m.requests == 0 {
			continue
		}
		sum += 1 - m.successRate()
		n++
	}
	if n == 0 {
		return 0, false
	}
	rate := sum / float64(n)
	return rate, rate > o.cfg.Weights.AIFailureRate
}

// selectChain scores every enabled, applicable provider that currently passes
// its own gates and orders them: conventional providers by score, then AI
// providers by ascending cost. With PreferAIOnDegradation the AI group leads
// while conventional providers are degraded. Applicable providers held back
// by their own gates are returned separately.
func (o *Orchestrator) selectChain(req model.ScrapeRequest) ([]Selection, []gated) {
	all := o.registry.list()
	_, degraded := o.degradation(all)
	w := o.cfg.Weights

	var conventional, ai []Selection
	var held []gated
	o.mu.Lock()
	for _, p := range all {
		if !p.CanHandle(req.URL) {
			continue
		}
		if !p.CheckRateLimit() {
			held = append(held, gateOf(p))
			continue
		}
		m := o.metrics[p.Name()]
		if m == nil {
			m = &providerMetrics{}
		}
		cpr, measured := m.costPerRequest()
		if !measured {
			cpr = p.EstimateCost(req)
		}
		latencyMs := float64(m.avgLatency().Milliseconds())

		b := ScoreBreakdown{
			Priority:            w.Priority * float64(p.Config().Priority),
			SuccessRate:         w.SuccessRate * m.successRate() * 100,
			ResponseTime:        w.ResponseTime * math.Max(0, 100-latencyMs/100),
			Cost:                w.Cost * math.Max(0, 100-cpr*1000),
			ConsecutiveFailures: -w.ConsecutiveFailures * float64(m.consecutiveFailures),
			Confidence:          w.Confidence * m.avgConfidence(),
		}
		if degraded && p.Capability().IsAI() {
			b.AIBoost = w.AIBoost
		}
		sel := Selection{
			Name:           p.Name(),
			Capability:     p.Capability(),
			Score:          b.Total(),
			Breakdown:      b,
			CostPerRequest: cpr,
			Threshold:      o.threshold(p.Capability()),
			Provider:       p,
		}
		if sel.Capability.IsAI() {
			ai = append(ai, sel)
		} else {
			conventional = append(conventional, sel)
		}
	}
	o.mu.Unlock()

	sort.SliceStable(conventional, func(i, j int) bool {
		return conventional[i].Score > conventional[j].Score
	})
	sort.SliceStable(ai, func(i, j int) bool {
		if ai[i].CostPerRequest != ai[j].CostPerRequest {
			return ai[i].CostPerRequest < ai[j].CostPerRequest
		}
		return ai[i].Score > ai[j].Score
	})

	if degraded && o.cfg.PreferAIOnDegradation {
		return append(ai, conventional...), held
	}
	return append(conventional, ai...), held
}
