package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/orchestrator"
	"github.com/sells-group/profile-enricher/internal/provider"
	"github.com/sells-group/profile-enricher/internal/resilience"
	"github.com/sells-group/profile-enricher/internal/usage"
)

// EnvPrefix is prepended to every environment override, e.g.
// ENRICH_USAGE_DAILY_BUDGET.
const EnvPrefix = "ENRICH"

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Usage        UsageConfig        `yaml:"usage" mapstructure:"usage"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing      cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Firecrawl    FirecrawlConfig    `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity   PerplexityConfig   `yaml:"perplexity" mapstructure:"perplexity"`
	Providers    []provider.Config  `yaml:"providers" mapstructure:"providers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// OrchestratorConfig configures provider selection and execution.
type OrchestratorConfig struct {
	ConfidenceThreshold   float64       `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	AIConfidenceThreshold float64       `yaml:"ai_confidence_threshold" mapstructure:"ai_confidence_threshold"`
	Mode                  string        `yaml:"mode" mapstructure:"mode"`
	PreferAIOnDegradation bool          `yaml:"prefer_ai_on_degradation" mapstructure:"prefer_ai_on_degradation"`
	MaxConcurrent         int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Cache                 CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Retry                 RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Weights               WeightsConfig `yaml:"weights" mapstructure:"weights"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxEntries int           `yaml:"max_entries" mapstructure:"max_entries"`
}

// RetryConfig configures per-provider retries.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	Strategy    string  `yaml:"strategy" mapstructure:"strategy"`
	BaseDelayMs int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter      float64 `yaml:"jitter" mapstructure:"jitter"`
}

// WeightsConfig holds the provider scoring coefficients.
type WeightsConfig struct {
	Priority            float64 `yaml:"priority" mapstructure:"priority"`
	SuccessRate         float64 `yaml:"success_rate" mapstructure:"success_rate"`
	ResponseTime        float64 `yaml:"response_time" mapstructure:"response_time"`
	Cost                float64 `yaml:"cost" mapstructure:"cost"`
	ConsecutiveFailures float64 `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	Confidence          float64 `yaml:"confidence" mapstructure:"confidence"`
	AIBoost             float64 `yaml:"ai_boost" mapstructure:"ai_boost"`
	AIFailureRate       float64 `yaml:"ai_failure_rate" mapstructure:"ai_failure_rate"`
}

// UsageConfig configures budgets, quotas, history and the usage scheduler.
type UsageConfig struct {
	usage.Config `yaml:",inline" mapstructure:",squash"`

	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	// ExportPath is the SQLite file history is exported to on shutdown.
	ExportPath string `yaml:"export_path" mapstructure:"export_path"`
}

// MonitoringConfig configures alert delivery.
type MonitoringConfig struct {
	WebhookURL     string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" mapstructure:"webhook_timeout"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("orchestrator.confidence_threshold", orchestrator.DefaultConfidenceThreshold)
	v.SetDefault("orchestrator.ai_confidence_threshold", orchestrator.DefaultAIConfidenceThreshold)
	v.SetDefault("orchestrator.mode", string(orchestrator.ModeSequential))
	v.SetDefault("orchestrator.prefer_ai_on_degradation", false)
	v.SetDefault("orchestrator.max_concurrent", orchestrator.DefaultMaxConcurrent)
	v.SetDefault("orchestrator.cache.enabled", true)
	v.SetDefault("orchestrator.cache.ttl", orchestrator.DefaultCacheTTL.String())
	v.SetDefault("orchestrator.cache.max_entries", orchestrator.DefaultCacheMaxEntries)
	v.SetDefault("orchestrator.retry.max_attempts", 3)
	v.SetDefault("orchestrator.retry.strategy", string(resilience.StrategyExponential))
	v.SetDefault("orchestrator.retry.base_delay_ms", 500)
	v.SetDefault("orchestrator.retry.max_delay_ms", 30000)
	v.SetDefault("orchestrator.retry.multiplier", 2.0)
	v.SetDefault("orchestrator.retry.jitter", 0.1)

	w := orchestrator.DefaultWeights()
	v.SetDefault("orchestrator.weights.priority", w.Priority)
	v.SetDefault("orchestrator.weights.success_rate", w.SuccessRate)
	v.SetDefault("orchestrator.weights.response_time", w.ResponseTime)
	v.SetDefault("orchestrator.weights.cost", w.Cost)
	v.SetDefault("orchestrator.weights.consecutive_failures", w.ConsecutiveFailures)
	v.SetDefault("orchestrator.weights.confidence", w.Confidence)
	v.SetDefault("orchestrator.weights.ai_boost", w.AIBoost)
	v.SetDefault("orchestrator.weights.ai_failure_rate", w.AIFailureRate)

	v.SetDefault("usage.daily_budget", 0.0)
	v.SetDefault("usage.weekly_budget", 0.0)
	v.SetDefault("usage.monthly_budget", 0.0)
	v.SetDefault("usage.yearly_budget", 0.0)
	v.SetDefault("usage.warning_threshold", usage.DefaultWarningThreshold)
	v.SetDefault("usage.critical_threshold", usage.DefaultCriticalThreshold)
	v.SetDefault("usage.track_history", true)
	v.SetDefault("usage.history_retention", usage.DefaultHistoryRetention.String())
	v.SetDefault("usage.max_history", usage.DefaultMaxHistory)
	v.SetDefault("usage.notify_timeout", usage.DefaultNotifyTimeout.String())
	v.SetDefault("usage.tick_interval", usage.DefaultTickInterval.String())
	v.SetDefault("usage.export_path", "")

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.webhook_timeout", "10s")

	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")

	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.jina.page_tokens", 4000)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.input_mtok", 1.0)
	v.SetDefault("pricing.perplexity.output_mtok", 1.0)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0, "image_tokens": 1600},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0, "image_tokens": 1600},
	})
}

// OrchestratorSettings converts the orchestrator section.
func (c *Config) OrchestratorSettings() (orchestrator.Config, error) {
	oc := c.Orchestrator
	mode, err := orchestrator.ParseMode(oc.Mode)
	if err != nil {
		return orchestrator.Config{}, err
	}
	retry, err := resilience.FromRetryConfig(oc.Retry.MaxAttempts, oc.Retry.Strategy,
		oc.Retry.BaseDelayMs, oc.Retry.MaxDelayMs, oc.Retry.Multiplier, oc.Retry.Jitter)
	if err != nil {
		return orchestrator.Config{}, eris.Wrap(err, "config: orchestrator.retry")
	}
	return orchestrator.Config{
		ConfidenceThreshold:   oc.ConfidenceThreshold,
		AIConfidenceThreshold: oc.AIConfidenceThreshold,
		Mode:                  mode,
		CacheEnabled:          oc.Cache.Enabled,
		CacheTTL:              oc.Cache.TTL,
		CacheMaxEntries:       oc.Cache.MaxEntries,
		Retry:                 retry,
		Weights: orchestrator.Weights{
			Priority:            oc.Weights.Priority,
			SuccessRate:         oc.Weights.SuccessRate,
			ResponseTime:        oc.Weights.ResponseTime,
			Cost:                oc.Weights.Cost,
			ConsecutiveFailures: oc.Weights.ConsecutiveFailures,
			Confidence:          oc.Weights.Confidence,
			AIBoost:             oc.Weights.AIBoost,
			AIFailureRate:       oc.Weights.AIFailureRate,
		},
		PreferAIOnDegradation: oc.PreferAIOnDegradation,
		MaxConcurrent:         oc.MaxConcurrent,
	}, nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "scrape", "serve" or "providers". Every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "scrape", "providers":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "providers" && len(c.Providers) == 0 {
		errs = append(errs, "providers: at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("providers: duplicate name %q", p.Name))
		}
		seen[p.Name] = true
	}

	if _, err := c.OrchestratorSettings(); err != nil {
		errs = append(errs, err.Error())
	}
	oc := c.Orchestrator
	if oc.ConfidenceThreshold < 0 || oc.ConfidenceThreshold > 100 {
		errs = append(errs, "orchestrator.confidence_threshold must be between 0 and 100")
	}
	if oc.AIConfidenceThreshold < 0 || oc.AIConfidenceThreshold > 100 {
		errs = append(errs, "orchestrator.ai_confidence_threshold must be between 0 and 100")
	}
	if oc.MaxConcurrent < 0 || oc.MaxConcurrent > 50 {
		errs = append(errs, "orchestrator.max_concurrent must be between 0 and 50")
	}

	u := c.Usage
	if u.DailyBudget < 0 || u.WeeklyBudget < 0 || u.MonthlyBudget < 0 || u.YearlyBudget < 0 {
		errs = append(errs, "usage budgets must be >= 0")
	}
	if u.WarningThreshold > 0 && u.CriticalThreshold > 0 && u.WarningThreshold >= u.CriticalThreshold {
		errs = append(errs, "usage.warning_threshold must be below usage.critical_threshold")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
