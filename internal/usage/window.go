package usage

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Window is a calendar period over which usage accumulates.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
	WindowYearly  Window = "yearly"
)

// AllWindows returns the tracked windows from shortest to longest.
func AllWindows() []Window {
	return []Window{WindowDaily, WindowWeekly, WindowMonthly, WindowYearly}
}

// ParseWindow converts a name into a Window.
func ParseWindow(s string) (Window, error) {
	for _, w := range AllWindows() {
		if string(w) == s {
			return w, nil
		}
	}
	return "", eris.Errorf("usage: unknown window %q", s)
}

// Start returns the UTC instant at which the window containing t opened.
// Weeks open on Sunday.
func (w Window) Start(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case WindowWeekly:
		return day.AddDate(0, 0, -int(day.Weekday()))
	case WindowMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case WindowYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// End returns when the window that opened at start closes.
func (w Window) End(start time.Time) time.Time {
	switch w {
	case WindowWeekly:
		return start.AddDate(0, 0, 7)
	case WindowMonthly:
		return start.AddDate(0, 1, 0)
	case WindowYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// period accumulates usage for one window.
type period struct {
	start     time.Time
	requests  int64
	successes int64
	failures  int64
	cost      decimal.Decimal
	tokens    int64
}

func (p *period) reset(start time.Time) {
	*p = period{start: start}
}

func (p *period) add(success bool, cost decimal.Decimal, tokens int) {
	p.requests++
	if success {
		p.successes++
	} else {
		p.failures++
	}
	p.cost = p.cost.Add(cost)
	p.tokens += int64(tokens)
}

// Period is a read-only snapshot of one window.
type Period struct {
	Window    Window    `json:"window"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Requests  int64     `json:"requests"`
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
	Cost      float64   `json:"cost"`
	Tokens    int64     `json:"tokens"`
	Budget    float64   `json:"budget,omitempty"`
}

// SuccessRate returns successes/requests, or 0 before any request.
func (p Period) SuccessRate() float64 {
	if p.Requests == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Requests)
}

func (p *period) snapshot(w Window, budget float64) Period {
	return Period{
		Window:    w,
		Start:     p.start,
		End:       w.End(p.start),
		Requests:  p.requests,
		Successes: p.successes,
		Failures:  p.failures,
		Cost:      p.cost.InexactFloat64(),
		Tokens:    p.tokens,
		Budget:    budget,
	}
}
