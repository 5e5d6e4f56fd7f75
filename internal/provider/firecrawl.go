package provider

import (
	"context"
	"strings"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/extract"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/firecrawl"
)

// FirecrawlProvider scrapes through Firecrawl, which renders JavaScript and
// gets past most anti-bot pages.
type FirecrawlProvider struct {
	*Base
	client firecrawl.Client
	calc   *cost.Calculator
	html   extract.Extractor
	text   extract.Extractor
}

// NewFirecrawlProvider creates a conventional provider backed by Firecrawl.
func NewFirecrawlProvider(cfg Config, client firecrawl.Client, calc *cost.Calculator, opts ...BaseOption) (*FirecrawlProvider, error) {
	if cfg.CostPerRequest == 0 && calc != nil {
		opts = append([]BaseOption{WithEstimator(func(model.ScrapeRequest) float64 { return calc.FirecrawlCredit() })}, opts...)
	}
	base, err := NewBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &FirecrawlProvider{
		Base:   base,
		client: client,
		calc:   calc,
		html:   extract.NewHTMLExtractor(),
		text:   extract.NewTextExtractor(),
	}, nil
}

// Scrape implements Provider.
func (p *FirecrawlProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, p.fetch)
}

func (p *FirecrawlProvider) fetch(ctx context.Context, req model.ScrapeRequest) (*Outcome, error) {
	resp, err := p.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             req.URL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	if p.calc != nil {
		out.Cost = p.calc.FirecrawlCredit()
	}
	if !resp.Success {
		return out, model.NewScrapeError(model.KindProvider, "scrape not successful: "+resp.Error, nil).
			WithStatus(resp.Data.Metadata.StatusCode)
	}
	if code := resp.Data.Metadata.StatusCode; code >= 400 {
		return out, &StatusError{StatusCode: code, URL: req.URL}
	}

	var rec *model.ExtractedRecord
	if strings.TrimSpace(resp.Data.HTML) != "" {
		rec, err = p.html.Extract(resp.Data.HTML, req.URL)
	}
	if err == nil && model.ScoreRecord(rec) == 0 && resp.Data.Markdown != "" {
		rec, err = p.text.Extract(resp.Data.Markdown, req.URL)
	}
	if err != nil {
		return out, model.NewScrapeError(model.KindExtraction, "parse firecrawl content", err)
	}
	if rec != nil && rec.Image == "" {
		rec.Image = resp.Data.Metadata.OGImage
	}
	out.Record = rec
	return out, nil
}
