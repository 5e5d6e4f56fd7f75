// Package provider defines the interchangeable extraction backends and the
// shared rate-limit, cost and scoring machinery they compose.
package provider

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/model"
)

// Backend kinds understood by Build.
const (
	KindHTTP       = "http"
	KindJina       = "jina"
	KindFirecrawl  = "firecrawl"
	KindAnthropic  = "anthropic"
	KindPerplexity = "perplexity"
)

// Provider is one extraction backend.
type Provider interface {
	// Name returns the unique provider key.
	Name() string
	// Capability returns the fixed capability tag.
	Capability() model.Capability
	// Config returns a snapshot of the current configuration.
	Config() Config
	// CanHandle reports whether the provider is enabled and applicable to rawURL.
	CanHandle(rawURL string) bool
	// CheckRateLimit reports whether a request would currently pass the
	// provider's rate, quota and cost gates. It does not consume capacity.
	CheckRateLimit() bool
	// Scrape performs one attempt. It never panics or returns a Go error;
	// failures are carried on the response.
	Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse
	// EstimateCost returns the expected USD cost of scraping req.
	EstimateCost(req model.ScrapeRequest) float64
	// Status returns health and counters.
	Status() Status
	SetEnabled(enabled bool)
	SetPriority(priority int) error
	SetRateLimit(perMinute int) error
}

// Config describes one provider. It is validated at construction.
type Config struct {
	Name              string            `yaml:"name" mapstructure:"name" json:"name" validate:"required,max=64"`
	Kind              string            `yaml:"kind" mapstructure:"kind" json:"kind" validate:"required,oneof=http jina firecrawl anthropic perplexity"`
	Capability        model.Capability  `yaml:"capability" mapstructure:"capability" json:"capability" validate:"required,oneof=conventional ai_text ai_vision"`
	Priority          int               `yaml:"priority" mapstructure:"priority" json:"priority" validate:"min=1,max=10"`
	RateLimit         int               `yaml:"rate_limit" mapstructure:"rate_limit" json:"rate_limit" validate:"gte=0"`
	Timeout           time.Duration     `yaml:"timeout" mapstructure:"timeout" json:"timeout" validate:"gte=0"`
	Enabled           *bool             `yaml:"enabled" mapstructure:"enabled" json:"enabled,omitempty"`
	Domains           []string          `yaml:"domains" mapstructure:"domains" json:"domains,omitempty"`
	Credentials       map[string]string `yaml:"credentials" mapstructure:"credentials" json:"-"`
	Model             string            `yaml:"model" mapstructure:"model" json:"model,omitempty"`
	CostPerRequest    float64           `yaml:"cost_per_request" mapstructure:"cost_per_request" json:"cost_per_request" validate:"gte=0"`
	DailyCostLimit    float64           `yaml:"daily_cost_limit" mapstructure:"daily_cost_limit" json:"daily_cost_limit,omitempty" validate:"gte=0"`
	MonthlyCostLimit  float64           `yaml:"monthly_cost_limit" mapstructure:"monthly_cost_limit" json:"monthly_cost_limit,omitempty" validate:"gte=0"`
	DailyRequestQuota int               `yaml:"daily_request_quota" mapstructure:"daily_request_quota" json:"daily_request_quota,omitempty" validate:"gte=0"`
	DailyTokenQuota   int               `yaml:"daily_token_quota" mapstructure:"daily_token_quota" json:"daily_token_quota,omitempty" validate:"gte=0"`
}

// DefaultTimeout applies when neither the request nor the config sets one.
const DefaultTimeout = 30 * time.Second

// IsEnabled reports the configured enabled flag; unset means enabled.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// CostAware reports whether the config carries any cost ceiling or quota.
func (c Config) CostAware() bool {
	return c.DailyCostLimit > 0 || c.MonthlyCostLimit > 0 || c.DailyRequestQuota > 0 || c.DailyTokenQuota > 0
}

// Credential returns a named credential, or "".
func (c Config) Credential(key string) string {
	return c.Credentials[key]
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks a Config's field constraints.
func Validate(cfg Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		return eris.Wrapf(err, "provider %q: invalid config", cfg.Name)
	}
	return nil
}

// Status is a provider health snapshot.
type Status struct {
	Name          string           `json:"name"`
	Kind          string           `json:"kind"`
	Capability    model.Capability `json:"capability"`
	Enabled       bool             `json:"enabled"`
	Priority      int              `json:"priority"`
	RateLimit     int              `json:"rate_limit"`
	RateRemaining int              `json:"rate_remaining"`
	RateResetAt   time.Time        `json:"rate_reset_at"`
	Requests      int64            `json:"requests"`
	Successes     int64            `json:"successes"`
	Failures      int64            `json:"failures"`
	Refused       int64            `json:"refused"`
	Abandoned     int64            `json:"abandoned"`
	AvgLatency    time.Duration    `json:"avg_latency"`
	AvgConfidence float64          `json:"avg_confidence"`
	LastError     string           `json:"last_error,omitempty"`
	LastUsed      time.Time        `json:"last_used,omitempty"`
	Ledger        *LedgerStatus    `json:"ledger,omitempty"`
}

// hostMatches reports whether rawURL's host equals or is a subdomain of one of domains.
func hostMatches(rawURL string, domains []string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	if len(domains) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "*."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
