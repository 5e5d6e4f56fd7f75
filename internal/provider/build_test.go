package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/model"
)

func TestBuild_Kinds(t *testing.T) {
	deps := Deps{
		Jina:       &fakeJina{},
		Firecrawl:  &fakeFirecrawl{},
		Anthropic:  &fakeAnthropic{},
		Perplexity: &fakePerplexity{},
		Calculator: cost.NewCalculator(cost.DefaultRates()),
	}

	cfgs := []Config{
		testConfig("direct"),
		{Name: "jina", Kind: KindJina, Capability: model.CapabilityConventional, Priority: 6},
		{Name: "firecrawl", Kind: KindFirecrawl, Capability: model.CapabilityConventional, Priority: 4},
		{Name: "claude", Kind: KindAnthropic, Capability: model.CapabilityAIText, Priority: 2},
		{Name: "claude-vision", Kind: KindAnthropic, Capability: model.CapabilityAIVision, Priority: 2},
		{Name: "pplx", Kind: KindPerplexity, Capability: model.CapabilityAIText, Priority: 3},
	}
	providers, err := BuildAll(cfgs, deps)
	require.NoError(t, err)
	require.Len(t, providers, len(cfgs))

	assert.IsType(t, &HTTPProvider{}, providers[0])
	assert.IsType(t, &JinaProvider{}, providers[1])
	assert.IsType(t, &FirecrawlProvider{}, providers[2])
	assert.IsType(t, &AnthropicProvider{}, providers[3])
	assert.IsType(t, &AnthropicProvider{}, providers[4])
	assert.IsType(t, &PerplexityProvider{}, providers[5])

	for i, p := range providers {
		assert.Equal(t, cfgs[i].Name, p.Name())
		assert.Equal(t, cfgs[i].Capability, p.Capability())
	}
	assert.NotNil(t, providers[3].(*AnthropicProvider).pages, "ai text gets a page source")
	assert.Nil(t, providers[4].(*AnthropicProvider).pages, "vision reads screenshots only")
	assert.Greater(t, providers[3].EstimateCost(model.ScrapeRequest{}), 0.0)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"http must be conventional", Config{Name: "x", Kind: KindHTTP, Capability: model.CapabilityAIText, Priority: 1}},
		{"anthropic without key", Config{Name: "x", Kind: KindAnthropic, Capability: model.CapabilityAIText, Priority: 1}},
		{"perplexity without key", Config{Name: "x", Kind: KindPerplexity, Capability: model.CapabilityAIText, Priority: 1}},
		{"invalid", Config{Name: "", Kind: KindHTTP, Capability: model.CapabilityConventional, Priority: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfg, Deps{})
			assert.Error(t, err)
		})
	}
}

func TestBuild_ClientsFromCredentials(t *testing.T) {
	cfg := Config{
		Name:        "claude",
		Kind:        KindAnthropic,
		Capability:  model.CapabilityAIText,
		Priority:    2,
		Credentials: map[string]string{CredAPIKey: "sk-test", CredPageSource: KindJina},
	}
	p, err := Build(cfg, Deps{})
	require.NoError(t, err)
	ap := p.(*AnthropicProvider)
	assert.NotNil(t, ap.client)
	assert.NotNil(t, ap.pages)
}
