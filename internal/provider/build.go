package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/anthropic"
	"github.com/sells-group/profile-enricher/pkg/firecrawl"
	"github.com/sells-group/profile-enricher/pkg/jina"
	"github.com/sells-group/profile-enricher/pkg/perplexity"
)

// Credential keys read by Build.
const (
	CredAPIKey     = "api_key"
	CredBaseURL    = "base_url"
	CredPageSource = "page_source"
)

// Deps carries shared clients for Build. Any nil client is created from the
// provider's own credentials.
type Deps struct {
	HTTPClient *http.Client
	Hosts      *HostLimiter
	Jina       jina.Client
	Firecrawl  firecrawl.Client
	Anthropic  anthropic.Client
	Perplexity perplexity.Client
	Calculator *cost.Calculator
	// Pages overrides the page source of AI text providers.
	Pages PageSource
	Clock func() time.Time
}

// Build constructs the provider described by cfg.
func Build(cfg Config, deps Deps) (Provider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	var opts []BaseOption
	if deps.Clock != nil {
		opts = append(opts, WithClock(deps.Clock))
	}
	if deps.Hosts == nil {
		deps.Hosts = NewHostLimiter(2, 2)
	}
	apiKey, baseURL := cfg.Credential(CredAPIKey), cfg.Credential(CredBaseURL)

	switch cfg.Kind {
	case KindHTTP:
		if cfg.Capability != model.CapabilityConventional {
			return nil, eris.Errorf("provider %q: http providers are conventional", cfg.Name)
		}
		return NewHTTPProvider(cfg, deps.HTTPClient, deps.Hosts, opts...)

	case KindJina:
		client := deps.Jina
		if client == nil || baseURL != "" {
			client = newJinaClient(apiKey, baseURL)
		}
		return NewJinaProvider(cfg, client, deps.Calculator, opts...)

	case KindFirecrawl:
		client := deps.Firecrawl
		if client == nil || baseURL != "" {
			var fopts []firecrawl.Option
			if baseURL != "" {
				fopts = append(fopts, firecrawl.WithBaseURL(baseURL))
			}
			client = firecrawl.NewClient(apiKey, fopts...)
		}
		return NewFirecrawlProvider(cfg, client, deps.Calculator, opts...)

	case KindAnthropic:
		client := deps.Anthropic
		if client == nil || apiKey != "" {
			if apiKey == "" {
				return nil, eris.Errorf("provider %q: missing %s credential", cfg.Name, CredAPIKey)
			}
			var aopts []option.RequestOption
			if baseURL != "" {
				aopts = append(aopts, option.WithBaseURL(baseURL))
			}
			client = anthropic.NewClient(apiKey, aopts...)
		}
		return NewAnthropicProvider(cfg, client, deps.Calculator, pageSource(cfg, deps), opts...)

	case KindPerplexity:
		client := deps.Perplexity
		if client == nil || apiKey != "" {
			if apiKey == "" {
				return nil, eris.Errorf("provider %q: missing %s credential", cfg.Name, CredAPIKey)
			}
			var popts []perplexity.Option
			if baseURL != "" {
				popts = append(popts, perplexity.WithBaseURL(baseURL))
			}
			if cfg.Model != "" {
				popts = append(popts, perplexity.WithModel(cfg.Model))
			}
			client = perplexity.NewClient(apiKey, popts...)
		}
		return NewPerplexityProvider(cfg, client, deps.Calculator, opts...)
	}
	return nil, eris.Errorf("provider %q: unknown kind %q", cfg.Name, cfg.Kind)
}

// BuildAll constructs every config, sharing one host limiter across HTTP fetches.
func BuildAll(cfgs []Config, deps Deps) ([]Provider, error) {
	if deps.Hosts == nil {
		deps.Hosts = NewHostLimiter(2, 2)
	}
	out := make([]Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := Build(cfg, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// pageSource picks where an AI text provider reads page content from:
// the Jina reader when page_source=jina, otherwise a direct fetch.
func pageSource(cfg Config, deps Deps) PageSource {
	if cfg.Capability != model.CapabilityAIText {
		return nil
	}
	if cfg.Credential(CredPageSource) == KindJina {
		client := deps.Jina
		if client == nil {
			client = newJinaClient(cfg.Credential("jina_api_key"), "")
		}
		return func(ctx context.Context, targetURL string) (string, error) {
			resp, err := client.Read(ctx, targetURL)
			if err != nil {
				return "", err
			}
			return resp.Data.Content, nil
		}
	}
	if deps.Pages != nil {
		return deps.Pages
	}
	return NewPageFetcher(deps.HTTPClient, deps.Hosts, cfg.Credential("user_agent")).Fetch
}

func newJinaClient(apiKey, baseURL string) jina.Client {
	var opts []jina.Option
	if baseURL != "" {
		opts = append(opts, jina.WithBaseURL(baseURL))
	}
	return jina.NewClient(apiKey, opts...)
}
