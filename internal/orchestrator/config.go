package orchestrator

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/resilience"
)

// Mode selects how a fallback chain is executed.
type Mode string

const (
	// ModeSequential tries chain members one at a time in order.
	ModeSequential Mode = "sequential"
	// ModeParallel races all chain members and falls back to sequential
	// when the race produces no accepted result.
	ModeParallel Mode = "parallel"
)

// ParseMode converts a config string to a Mode. Empty means sequential.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return ModeSequential, nil
	case ModeSequential, ModeParallel:
		return m, nil
	}
	return "", eris.Errorf("orchestrator: unknown mode %q", s)
}

// Weights are the coefficients of the provider score.
type Weights struct {
	Priority            float64 `json:"priority"`
	SuccessRate         float64 `json:"success_rate"`
	ResponseTime        float64 `json:"response_time"`
	Cost                float64 `json:"cost"`
	ConsecutiveFailures float64 `json:"consecutive_failures"`
	Confidence          float64 `json:"confidence"`
	// AIBoost is added to AI providers while conventional providers are degraded.
	AIBoost float64 `json:"ai_boost"`
	// AIFailureRate is the average conventional failure rate above which
	// conventional providers count as degraded.
	AIFailureRate float64 `json:"ai_failure_rate"`
}

// DefaultWeights returns the standard scoring coefficients.
func DefaultWeights() Weights {
	return Weights{
		Priority:            10,
		SuccessRate:         5,
		ResponseTime:        3,
		Cost:                2,
		ConsecutiveFailures: 20,
		Confidence:          2,
		AIBoost:             50,
		AIFailureRate:       0.30,
	}
}

// Config controls selection, execution and caching.
type Config struct {
	// ConfidenceThreshold is the bar for conventional providers.
	ConfidenceThreshold float64
	// AIConfidenceThreshold is the bar for AI providers.
	AIConfidenceThreshold float64

	Mode Mode

	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheMaxEntries int

	Retry   resilience.RetryConfig
	Weights Weights

	// PreferAIOnDegradation moves AI providers ahead of conventional ones
	// while conventional providers are degraded. Off by default: the boost
	// is still scored but the chain keeps conventional providers first.
	PreferAIOnDegradation bool

	// MaxConcurrent bounds ScrapeMany when the caller passes no limit.
	MaxConcurrent int
}

// Defaults.
const (
	DefaultConfidenceThreshold   = 70.0
	DefaultAIConfidenceThreshold = 80.0
	DefaultCacheTTL              = time.Hour
	DefaultCacheMaxEntries       = 1000
	DefaultMaxConcurrent         = 5
)

// DefaultConfig returns the standard orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		AIConfidenceThreshold: DefaultAIConfidenceThreshold,
		Mode:                  ModeSequential,
		CacheEnabled:          true,
		CacheTTL:              DefaultCacheTTL,
		CacheMaxEntries:       DefaultCacheMaxEntries,
		Retry:                 resilience.DefaultRetryConfig(),
		Weights:               DefaultWeights(),
		MaxConcurrent:         DefaultMaxConcurrent,
	}
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.AIConfidenceThreshold <= 0 {
		c.AIConfidenceThreshold = DefaultAIConfidenceThreshold
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = resilience.DefaultRetryConfig()
	}
	if c.Mode == "" {
		c.Mode = ModeSequential
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	return c
}
