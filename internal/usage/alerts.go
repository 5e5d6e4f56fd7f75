package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Severity orders how close a budget or quota is to its ceiling.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityExceeded Severity = "exceeded"
)

// Alert is raised when usage crosses a threshold. Subject identifies what
// crossed it, e.g. "budget-daily" or "quota-perplexity-tokens".
type Alert struct {
	Subject   string    `json:"subject"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Used      float64   `json:"used"`
	Limit     float64   `json:"limit"`
	Ratio     float64   `json:"ratio"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error { return f(ctx, alert) }

func budgetSubject(w Window) string { return "budget-" + string(w) }

func quotaSubject(providerName, unit string) string {
	return "quota-" + providerName + "-" + unit
}

func (t *Tracker) severity(ratio float64) Severity {
	switch {
	case ratio >= 1:
		return SeverityExceeded
	case ratio >= t.cfg.CriticalThreshold:
		return SeverityCritical
	case ratio >= t.cfg.WarningThreshold:
		return SeverityWarning
	}
	return ""
}

// evaluate checks budgets and the given provider's quota, returning newly
// raised alerts. A subject re-fires only when its severity changes.
// must hold mu
func (t *Tracker) evaluate(now time.Time, providerName string) []Alert {
	var out []Alert
	raise := func(subject string, used, limit float64, msg string) {
		if limit <= 0 {
			return
		}
		ratio := used / limit
		sev := t.severity(ratio)
		if sev == "" || t.fired[subject] == sev {
			return
		}
		t.fired[subject] = sev
		a := Alert{
			Subject:   subject,
			Severity:  sev,
			Message:   fmt.Sprintf("%s at %.0f%%", msg, ratio*100),
			Used:      used,
			Limit:     limit,
			Ratio:     ratio,
			Timestamp: now.UTC(),
		}
		t.alerts = append(t.alerts, a)
		if len(t.alerts) > alertCap {
			t.alerts = t.alerts[len(t.alerts)-alertCap:]
		}
		out = append(out, a)
	}

	for _, w := range AllWindows() {
		limit := t.cfg.Budget(w)
		raise(budgetSubject(w), t.windows[w].cost.InexactFloat64(), limit,
			fmt.Sprintf("%s budget of $%.2f", w, limit))
	}

	if q, ok := t.cfg.Quotas[providerName]; ok {
		ps := t.providers[providerName]
		raise(quotaSubject(providerName, "requests"), float64(ps.day.requests), float64(q.DailyRequests),
			fmt.Sprintf("%s daily request quota of %d", providerName, q.DailyRequests))
		raise(quotaSubject(providerName, "tokens"), float64(ps.day.tokens), float64(q.DailyTokens),
			fmt.Sprintf("%s daily token quota of %d", providerName, q.DailyTokens))
	}
	return out
}

// dispatch hands alerts to the notifier in the background. Delivery errors
// are logged and dropped.
func (t *Tracker) dispatch(alerts []Alert) {
	for _, a := range alerts {
		log := zap.L().With(
			zap.String("subject", a.Subject),
			zap.String("severity", string(a.Severity)),
		)
		log.Warn("usage: threshold crossed", zap.String("message", a.Message))

		if t.notifier == nil {
			continue
		}
		t.pending.Add(1)
		go func(a Alert) {
			defer t.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.NotifyTimeout)
			defer cancel()
			if err := t.notifier.Notify(ctx, a); err != nil {
				log.Warn("usage: alert delivery failed", zap.Error(err))
			}
		}(a)
	}
}

// Alerts returns the most recent alerts, oldest first.
func (t *Tracker) Alerts() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Alert(nil), t.alerts...)
}
