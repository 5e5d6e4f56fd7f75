package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetCheck is the answer to CheckBudget. Limits of 0 mean unlimited, in
// which case the matching Remaining is 0 as well.
type BudgetCheck struct {
	Allowed          bool    `json:"allowed"`
	Reason           string  `json:"reason,omitempty"`
	Window           Window  `json:"window,omitempty"`
	DailyLimit       float64 `json:"daily_limit"`
	DailyRemaining   float64 `json:"daily_remaining"`
	MonthlyLimit     float64 `json:"monthly_limit"`
	MonthlyRemaining float64 `json:"monthly_remaining"`
}

// CheckBudget reports whether spending estimate more would keep both the daily
// and the monthly window within their budgets. Outstanding reservations count
// as spent.
func (t *Tracker) CheckBudget(estimate float64) BudgetCheck {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(t.nowFunc())
	return t.checkBudget(decimal.NewFromFloat(estimate))
}

// Reserve checks the budget like CheckBudget and, when allowed, holds estimate
// against both windows until release is called. Concurrent callers cannot
// both be admitted against the same remaining budget. Release is idempotent
// and should follow TrackRequest so the real cost replaces the hold.
func (t *Tracker) Reserve(estimate float64) (check BudgetCheck, release func()) {
	est := decimal.NewFromFloat(estimate)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(t.nowFunc())
	check = t.checkBudget(est)
	if !check.Allowed || !est.IsPositive() {
		return check, func() {}
	}
	t.reserved = t.reserved.Add(est)

	var once sync.Once
	return check, func() {
		once.Do(func() {
			t.mu.Lock()
			t.reserved = t.reserved.Sub(est)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) checkBudget(est decimal.Decimal) BudgetCheck {
	check := BudgetCheck{
		Allowed:      true,
		DailyLimit:   t.cfg.DailyBudget,
		MonthlyLimit: t.cfg.MonthlyBudget,
	}
	daily := t.windows[WindowDaily].cost.Add(t.reserved)
	monthly := t.windows[WindowMonthly].cost.Add(t.reserved)
	check.DailyRemaining = remaining(t.cfg.DailyBudget, daily)
	check.MonthlyRemaining = remaining(t.cfg.MonthlyBudget, monthly)

	for _, w := range []Window{WindowDaily, WindowMonthly} {
		spent := daily
		if w == WindowMonthly {
			spent = monthly
		}
		limit := t.cfg.Budget(w)
		if limit <= 0 {
			continue
		}
		if spent.Add(est).GreaterThan(decimal.NewFromFloat(limit)) {
			check.Allowed = false
			check.Window = w
			check.Reason = fmt.Sprintf("%s budget of $%.2f would be exceeded (spent $%.4f, estimate $%.4f)",
				w, limit, spent.InexactFloat64(), est.InexactFloat64())
			break
		}
	}
	return check
}

func remaining(limit float64, spent decimal.Decimal) float64 {
	if limit <= 0 {
		return 0
	}
	r := decimal.NewFromFloat(limit).Sub(spent)
	if r.IsNegative() {
		return 0
	}
	return r.InexactFloat64()
}

// QuotaCheck is the answer to CheckProviderQuota. Remaining values are -1
// when the matching ceiling is not configured.
type QuotaCheck struct {
	Provider          string    `json:"provider"`
	Allowed           bool      `json:"allowed"`
	Reason            string    `json:"reason,omitempty"`
	RequestsUsed      int64     `json:"requests_used"`
	RequestsRemaining int64     `json:"requests_remaining"`
	TokensUsed        int64     `json:"tokens_used"`
	TokensRemaining   int64     `json:"tokens_remaining"`
	ResetAt           time.Time `json:"reset_at"`
}

// CheckProviderQuota checks a provider's daily request and token allowance.
// Providers without a configured quota are always allowed.
func (t *Tracker) CheckProviderQuota(providerName string) QuotaCheck {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()
	t.roll(now)

	check := QuotaCheck{
		Provider:          providerName,
		Allowed:           true,
		RequestsRemaining: -1,
		TokensRemaining:   -1,
		ResetAt:           WindowDaily.End(WindowDaily.Start(now)),
	}
	if ps, ok := t.providers[providerName]; ok {
		check.RequestsUsed = ps.day.requests
		check.TokensUsed = ps.day.tokens
	}

	q, ok := t.cfg.Quotas[providerName]
	if !ok {
		return check
	}
	if q.DailyRequests > 0 {
		check.RequestsRemaining = max(0, int64(q.DailyRequests)-check.RequestsUsed)
		if check.RequestsRemaining == 0 {
			check.Allowed = false
			check.Reason = fmt.Sprintf("daily request quota of %d reached", q.DailyRequests)
		}
	}
	if q.DailyTokens > 0 {
		check.TokensRemaining = max(0, int64(q.DailyTokens)-check.TokensUsed)
		if check.TokensRemaining == 0 && check.Allowed {
			check.Allowed = false
			check.Reason = fmt.Sprintf("daily token quota of %d reached", q.DailyTokens)
		}
	}
	return check
}
