package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/profile-enricher/internal/model"
)

// LedgerConfig holds the ceilings a CostLedger enforces. Zero disables a ceiling.
type LedgerConfig struct {
	DailyRequestQuota int
	DailyTokenQuota   int
	DailyCostLimit    float64
	MonthlyCostLimit  float64
}

// LedgerStatus is a snapshot of a CostLedger.
type LedgerStatus struct {
	TotalCost        float64   `json:"total_cost"`
	TotalTokens      int64     `json:"total_tokens"`
	TotalRequests    int64     `json:"total_requests"`
	DailyRequests    int       `json:"daily_requests"`
	DailyTokens      int       `json:"daily_tokens"`
	DailyCost        float64   `json:"daily_cost"`
	MonthlyCost      float64   `json:"monthly_cost"`
	ProjectedMonthly float64   `json:"projected_monthly"`
	DayResetAt       time.Time `json:"day_reset_at"`
}

// CostLedger accumulates spend and token usage for one cost-aware provider and
// refuses requests that would break its daily quota or cost ceilings.
// Daily counters reset at UTC midnight, monthly ones on the 1st.
type CostLedger struct {
	mu         sync.Mutex
	cfg        LedgerConfig
	nowFunc    func() time.Time
	totalCost  decimal.Decimal
	totalTok   int64
	totalReqs  int64
	dayStart   time.Time
	dayReqs    int
	dayTok     int
	dayCost    decimal.Decimal
	monthStart time.Time
	monthCost  decimal.Decimal
}

// NewCostLedger creates a ledger with the given ceilings.
func NewCostLedger(cfg LedgerConfig, nowFunc func() time.Time) *CostLedger {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &CostLedger{cfg: cfg, nowFunc: nowFunc}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// must hold mu
func (l *CostLedger) roll(now time.Time) {
	if day := startOfDay(now); !day.Equal(l.dayStart) {
		l.dayStart = day
		l.dayReqs, l.dayTok = 0, 0
		l.dayCost = decimal.Zero
	}
	if month := startOfMonth(now); !month.Equal(l.monthStart) {
		l.monthStart = month
		l.monthCost = decimal.Zero
	}
}

// projected extrapolates month-to-date spend plus extra over the whole month.
// At least one elapsed day is assumed so the first hours of a month do not explode.
// must hold mu
func (l *CostLedger) projected(now time.Time, extra decimal.Decimal) decimal.Decimal {
	spent := l.monthCost.Add(extra)
	elapsedDays := now.Sub(l.monthStart).Hours() / 24
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	daysInMonth := l.monthStart.AddDate(0, 1, 0).Sub(l.monthStart).Hours() / 24
	return spent.Div(decimal.NewFromFloat(elapsedDays)).Mul(decimal.NewFromFloat(daysInMonth))
}

// Admit checks whether a request with the given estimated cost may proceed.
// It returns a quota_exceeded or budget_exceeded error when a ceiling would break.
func (l *CostLedger) Admit(estimate float64) *model.ScrapeError {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.roll(now)
	est := decimal.NewFromFloat(estimate)

	if q := l.cfg.DailyRequestQuota; q > 0 && l.dayReqs >= q {
		return model.NewScrapeError(model.KindQuotaExceeded, fmt.Sprintf("daily request quota of %d reached", q), nil)
	}
	if q := l.cfg.DailyTokenQuota; q > 0 && l.dayTok >= q {
		return model.NewScrapeError(model.KindQuotaExceeded, fmt.Sprintf("daily token quota of %d reached", q), nil)
	}
	if lim := l.cfg.DailyCostLimit; lim > 0 && l.dayCost.Add(est).GreaterThan(decimal.NewFromFloat(lim)) {
		return model.NewScrapeError(model.KindBudgetExceeded, fmt.Sprintf("daily cost limit of $%.2f would be exceeded", lim), nil)
	}
	if lim := l.cfg.MonthlyCostLimit; lim > 0 && l.projected(now, est).GreaterThan(decimal.NewFromFloat(lim)) {
		return model.NewScrapeError(model.KindBudgetExceeded, fmt.Sprintf("projected monthly cost exceeds limit of $%.2f", lim), nil)
	}
	return nil
}

// Record adds one completed request's cost and tokens.
func (l *CostLedger) Record(cost float64, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.nowFunc())
	c := decimal.NewFromFloat(cost)
	l.totalCost = l.totalCost.Add(c)
	l.totalTok += int64(tokens)
	l.totalReqs++
	l.dayReqs++
	l.dayTok += tokens
	l.dayCost = l.dayCost.Add(c)
	l.monthCost = l.monthCost.Add(c)
}

// Status returns a snapshot of the ledger.
func (l *CostLedger) Status() LedgerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.roll(now)
	return LedgerStatus{
		TotalCost:        l.totalCost.InexactFloat64(),
		TotalTokens:      l.totalTok,
		TotalRequests:    l.totalReqs,
		DailyRequests:    l.dayReqs,
		DailyTokens:      l.dayTok,
		DailyCost:        l.dayCost.InexactFloat64(),
		MonthlyCost:      l.monthCost.InexactFloat64(),
		ProjectedMonthly: l.projected(now, decimal.Zero).InexactFloat64(),
		DayResetAt:       l.dayStart.AddDate(0, 0, 1),
	}
}
