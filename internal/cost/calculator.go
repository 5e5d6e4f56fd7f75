package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaRate             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
	// ImageTokens approximates the input tokens billed for one screenshot.
	ImageTokens int `yaml:"image_tokens" mapstructure:"image_tokens"`
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
	// PageTokens is the typical token count of one profile page.
	PageTokens int `yaml:"page_tokens" mapstructure:"page_tokens"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	InputMT  float64 `yaml:"input_mtok" mapstructure:"input_mtok"`
	OutputMT float64 `yaml:"output_mtok" mapstructure:"output_mtok"`
}

// FirecrawlRate holds Firecrawl pricing.
type FirecrawlRate struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// Expected token counts for a single profile extraction, used before a call is made.
const (
	ExpectedInputTokens  = 6000
	ExpectedOutputTokens = 400
)

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of a Claude call from its actual token usage.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// ClaudeEstimate returns the expected cost of one extraction, adding the
// screenshot tokens when vision is true.
func (c *Calculator) ClaudeEstimate(model string, vision bool) float64 {
	input := ExpectedInputTokens
	if vision {
		input += c.rates.Anthropic[model].ImageTokens
	}
	return c.Claude(model, input, ExpectedOutputTokens)
}

// Jina computes the cost for Jina Reader token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// JinaEstimate returns the expected cost of reading one page.
func (c *Calculator) JinaEstimate() float64 {
	return c.Jina(c.rates.Jina.PageTokens)
}

// Perplexity computes the cost of one query: the flat request fee plus tokens.
func (c *Calculator) Perplexity(input, output int) float64 {
	r := c.rates.Perplexity
	return r.PerQuery + (float64(input)/1e6)*r.InputMT + (float64(output)/1e6)*r.OutputMT
}

// PerplexityEstimate returns the expected cost of one extraction query.
func (c *Calculator) PerplexityEstimate() float64 {
	return c.Perplexity(ExpectedInputTokens/4, ExpectedOutputTokens)
}

// FirecrawlCredit returns the effective cost of one Firecrawl credit under the plan.
func (c *Calculator) FirecrawlCredit() float64 {
	if c.rates.Firecrawl.CreditsIncluded <= 0 {
		return 0
	}
	return c.rates.Firecrawl.PlanMonthly / c.rates.Firecrawl.CreditsIncluded
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00, ImageTokens: 1600},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, ImageTokens: 1600},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00, ImageTokens: 1600},
		},
		Jina:       JinaRate{PerMTok: 0.02, PageTokens: 8000},
		Perplexity: PerplexityRate{PerQuery: 0.005, InputMT: 1.00, OutputMT: 1.00},
		Firecrawl:  FirecrawlRate{PlanMonthly: 19.00, CreditsIncluded: 3000},
	}
}
