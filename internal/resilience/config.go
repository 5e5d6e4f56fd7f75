package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Zero values keep defaults.
func FromRetryConfig(maxAttempts int, strategy string, baseDelayMs, maxDelayMs int, multiplier, jitterFraction float64) (RetryConfig, error) {
	cfg := DefaultRetryConfig()
	s, err := ParseStrategy(strategy)
	if err != nil {
		return cfg, err
	}
	cfg.Strategy = s
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg, nil
}
