package main

import (
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/config"
	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/monitoring"
	"github.com/sells-group/profile-enricher/internal/orchestrator"
	"github.com/sells-group/profile-enricher/internal/provider"
	"github.com/sells-group/profile-enricher/internal/usage"
	"github.com/sells-group/profile-enricher/pkg/anthropic"
	"github.com/sells-group/profile-enricher/pkg/firecrawl"
	"github.com/sells-group/profile-enricher/pkg/jina"
	"github.com/sells-group/profile-enricher/pkg/perplexity"
)

// providersFile overrides the provider list from config when set.
var providersFile string

// app bundles the long-lived components every command shares.
type app struct {
	cfg      *config.Config
	tracker  *usage.Tracker
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
}

// prepare applies --providers, validates c for mode and builds the app.
func prepare(c *config.Config, mode string) (*app, error) {
	if providersFile != "" {
		cfgs, err := provider.LoadConfigs(providersFile)
		if err != nil {
			return nil, eris.Wrap(err, "load providers file")
		}
		c.Providers = cfgs
	}
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	return newApp(c)
}

// providerDeps builds the shared API clients from the credential sections.
// Providers carrying their own credentials still get a dedicated client.
func providerDeps(c *config.Config) provider.Deps {
	deps := provider.Deps{
		Hosts:      provider.NewHostLimiter(2, 2),
		Calculator: cost.NewCalculator(c.Pricing),
	}

	var jopts []jina.Option
	if c.Jina.BaseURL != "" {
		jopts = append(jopts, jina.WithBaseURL(c.Jina.BaseURL))
	}
	deps.Jina = jina.NewClient(c.Jina.Key, jopts...)

	if c.Firecrawl.Key != "" {
		var fopts []firecrawl.Option
		if c.Firecrawl.BaseURL != "" {
			fopts = append(fopts, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		}
		deps.Firecrawl = firecrawl.NewClient(c.Firecrawl.Key, fopts...)
	}
	if c.Anthropic.Key != "" {
		deps.Anthropic = anthropic.NewClient(c.Anthropic.Key, option.WithMaxRetries(0))
	}
	if c.Perplexity.Key != "" {
		var popts []perplexity.Option
		if c.Perplexity.BaseURL != "" {
			popts = append(popts, perplexity.WithBaseURL(c.Perplexity.BaseURL))
		}
		if c.Perplexity.Model != "" {
			popts = append(popts, perplexity.WithModel(c.Perplexity.Model))
		}
		deps.Perplexity = perplexity.NewClient(c.Perplexity.Key, popts...)
	}
	return deps
}

// newApp wires config into providers, the usage tracker, metrics and the
// orchestrator.
func newApp(c *config.Config) (*app, error) {
	cfgs := append([]provider.Config(nil), c.Providers...)
	for i := range cfgs {
		if cfgs[i].Kind == provider.KindAnthropic && cfgs[i].Model == "" {
			cfgs[i].Model = c.Anthropic.Model
		}
	}
	providers, err := provider.BuildAll(cfgs, providerDeps(c))
	if err != nil {
		return nil, eris.Wrap(err, "build providers")
	}

	var topts []usage.Option
	if c.Monitoring.WebhookURL != "" {
		topts = append(topts, usage.WithNotifier(monitoring.NewWebhookNotifier(c.Monitoring.WebhookURL, c.Monitoring.WebhookTimeout)))
	}
	tracker := usage.NewTracker(c.Usage.Config, topts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(monitoring.NewUsageCollector(tracker))
	metrics := monitoring.NewMetrics(reg)

	oc, err := c.OrchestratorSettings()
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(oc, tracker, orchestrator.WithObserver(metrics))
	for _, p := range providers {
		if err := orch.Register(p); err != nil {
			_ = orch.Close()
			return nil, err
		}
	}

	zap.L().Info("providers configured",
		zap.Int("count", len(providers)),
		zap.String("mode", string(oc.Mode)),
		zap.Float64("daily_budget", c.Usage.DailyBudget),
		zap.Float64("monthly_budget", c.Usage.MonthlyBudget),
	)
	return &app{cfg: c, tracker: tracker, orch: orch, registry: reg}, nil
}

// Close drains the orchestrator.
func (a *app) Close() error {
	return a.orch.Close()
}
