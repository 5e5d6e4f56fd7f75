package provider

import (
	"context"
	"strings"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/extract"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/jina"
)

// minReaderContent is the shortest reader output treated as a real page.
const minReaderContent = 100

// JinaProvider reads pages through the Jina reader and extracts from markdown.
type JinaProvider struct {
	*Base
	client    jina.Client
	calc      *cost.Calculator
	extractor extract.Extractor
}

// NewJinaProvider creates a conventional provider backed by Jina Reader.
func NewJinaProvider(cfg Config, client jina.Client, calc *cost.Calculator, opts ...BaseOption) (*JinaProvider, error) {
	if cfg.CostPerRequest == 0 && calc != nil {
		opts = append([]BaseOption{WithEstimator(func(model.ScrapeRequest) float64 { return calc.JinaEstimate() })}, opts...)
	}
	base, err := NewBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &JinaProvider{Base: base, client: client, calc: calc, extractor: extract.NewTextExtractor()}, nil
}

// Scrape implements Provider.
func (p *JinaProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, p.fetch)
}

func (p *JinaProvider) fetch(ctx context.Context, req model.ScrapeRequest) (*Outcome, error) {
	resp, err := p.client.Read(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Tokens: model.TokenUsage{InputTokens: resp.Data.Usage.Tokens}}
	if p.calc != nil {
		out.Cost = p.calc.Jina(resp.Data.Usage.Tokens)
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < minReaderContent {
		return out, model.NewScrapeError(model.KindExtraction, "reader returned empty content", nil)
	}
	if block := DetectBlockedContent(content); block != BlockNone {
		return out, model.NewScrapeError(model.KindProvider, "blocked ("+string(block)+")", nil)
	}

	rec, err := p.extractor.Extract(content, req.URL)
	if err != nil {
		return out, model.NewScrapeError(model.KindExtraction, "parse reader content", err)
	}
	if rec.Description == "" && resp.Data.Description != "" {
		rec.Description = resp.Data.Description
	}
	out.Record = rec
	return out, nil
}

// ReadPage returns the reader's markdown for a page. AI providers use it as
// their page source.
func (p *JinaProvider) ReadPage(ctx context.Context, targetURL string) (string, error) {
	resp, err := p.client.Read(ctx, targetURL)
	if err != nil {
		return "", err
	}
	return resp.Data.Content, nil
}
