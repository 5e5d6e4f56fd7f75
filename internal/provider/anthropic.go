package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/extract"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/anthropic"
)

// Request options read by AI providers.
const (
	// OptionContent supplies page text so the provider skips its own fetch.
	OptionContent = "content"
	// OptionScreenshot supplies a base64 screenshot for vision providers.
	OptionScreenshot = "screenshot_base64"
	// OptionScreenshotType is the screenshot's media type; default image/png.
	OptionScreenshotType = "screenshot_media_type"
)

const (
	defaultClaudeModel = "claude-haiku-4-5-20251001"
	maxPromptChars     = 60000
	maxAnswerTokens    = 1024
)

// PageSource returns the text of a page for AI extraction.
type PageSource func(ctx context.Context, targetURL string) (string, error)

// AnthropicProvider extracts profiles with Claude, from page text
// (ai_text) or from a supplied screenshot (ai_vision).
type AnthropicProvider struct {
	*Base
	client anthropic.Client
	calc   *cost.Calculator
	pages  PageSource
	model  string
}

// NewAnthropicProvider creates an AI provider. pages may be nil for vision
// providers or when callers always pass page content.
func NewAnthropicProvider(cfg Config, client anthropic.Client, calc *cost.Calculator, pages PageSource, opts ...BaseOption) (*AnthropicProvider, error) {
	if !cfg.Capability.IsAI() {
		return nil, eris.Errorf("provider %q: anthropic requires an ai capability, got %q", cfg.Name, cfg.Capability)
	}
	m := cfg.Model
	if m == "" {
		m = defaultClaudeModel
	}
	if cfg.CostPerRequest == 0 && calc != nil {
		vision := cfg.Capability == model.CapabilityAIVision
		opts = append([]BaseOption{WithEstimator(func(model.ScrapeRequest) float64 { return calc.ClaudeEstimate(m, vision) })}, opts...)
	}
	base, err := NewBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &AnthropicProvider{Base: base, client: client, calc: calc, pages: pages, model: m}, nil
}

// Scrape implements Provider.
func (p *AnthropicProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, p.fetch)
}

func (p *AnthropicProvider) fetch(ctx context.Context, req model.ScrapeRequest) (*Outcome, error) {
	msg, err := p.buildMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   maxAnswerTokens,
		System:      extract.AIPrompt,
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	in, outTok := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	out := &Outcome{Tokens: model.TokenUsage{InputTokens: in, OutputTokens: outTok}}
	if p.calc != nil {
		out.Cost = p.calc.Claude(p.model, in, outTok)
	}

	rec, err := extract.ParseAIRecord(resp.Text(), req.URL)
	if err != nil {
		return out, model.NewScrapeError(model.KindExtraction, "unparseable model answer", err)
	}
	out.Record = rec
	return out, nil
}

func (p *AnthropicProvider) buildMessage(ctx context.Context, req model.ScrapeRequest) (anthropic.Message, error) {
	msg := anthropic.Message{Role: "user"}

	if p.Capability() == model.CapabilityAIVision {
		shot := req.Option(OptionScreenshot)
		if shot == "" {
			return msg, model.NewScrapeError(model.KindValidation, "vision extraction needs the "+OptionScreenshot+" option", nil)
		}
		mediaType := req.Option(OptionScreenshotType)
		if mediaType == "" {
			mediaType = "image/png"
		}
		msg.Images = []anthropic.Image{{MediaType: mediaType, Data: shot}}
		msg.Content = "Screenshot of the profile page at " + req.URL
		return msg, nil
	}

	content := req.Option(OptionContent)
	if content == "" {
		if p.pages == nil {
			return msg, model.NewScrapeError(model.KindConfiguration, "no page source configured", nil)
		}
		var err error
		if content, err = p.pages(ctx, req.URL); err != nil {
			return msg, err
		}
	}
	if len(content) > maxPromptChars {
		content = content[:maxPromptChars]
	}
	msg.Content = "Source URL: " + req.URL + "\n\n" + content
	return msg, nil
}
