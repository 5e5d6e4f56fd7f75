package provider

import (
	"context"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/extract"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/perplexity"
)

// PerplexityProvider asks Perplexity's online models to read the profile URL
// and answer with the contact record. It is usually run on a free daily quota.
type PerplexityProvider struct {
	*Base
	client perplexity.Client
	calc   *cost.Calculator
	model  string
}

// NewPerplexityProvider creates an AI text provider backed by Perplexity.
func NewPerplexityProvider(cfg Config, client perplexity.Client, calc *cost.Calculator, opts ...BaseOption) (*PerplexityProvider, error) {
	if cfg.CostPerRequest == 0 && calc != nil {
		opts = append([]BaseOption{WithEstimator(func(model.ScrapeRequest) float64 { return calc.PerplexityEstimate() })}, opts...)
	}
	base, err := NewBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &PerplexityProvider{Base: base, client: client, calc: calc, model: cfg.Model}, nil
}

// Scrape implements Provider.
func (p *PerplexityProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, p.fetch)
}

func (p *PerplexityProvider) fetch(ctx context.Context, req model.ScrapeRequest) (*Outcome, error) {
	user := "Profile URL: " + req.URL
	if content := req.Option(OptionContent); content != "" {
		if len(content) > maxPromptChars {
			content = content[:maxPromptChars]
		}
		user += "\n\nPage content:\n" + content
	}

	temp := 0.0
	creq := perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: extract.AIPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    &temp,
		ResponseFormat: perplexity.JSONResponse(extract.AISchema),
	}
	if host := req.Host(); host != "" {
		creq.SearchDomainFilter = []string{host}
	}
	resp, err := p.client.ChatCompletion(ctx, creq)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Tokens: model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}}
	if p.calc != nil {
		out.Cost = p.calc.Perplexity(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	rec, err := extract.ParseAIRecord(resp.Text(), req.URL)
	if err != nil {
		return out, model.NewScrapeError(model.KindExtraction, "unparseable model answer", err)
	}
	out.Record = rec
	return out, nil
}
