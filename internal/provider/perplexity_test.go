package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/cost"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/perplexity"
)

type fakePerplexity struct {
	answer string
	got    perplexity.ChatCompletionRequest
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.got = req
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: f.answer}}},
		Usage:   perplexity.Usage{PromptTokens: 1000, CompletionTokens: 100},
	}, nil
}

func TestPerplexityProvider_FreeTierQuota(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := Config{
		Name:              "perplexity",
		Kind:              KindPerplexity,
		Capability:        model.CapabilityAIText,
		Priority:          3,
		DailyRequestQuota: 2,
	}
	calc := cost.NewCalculator(cost.Rates{Perplexity: cost.PerplexityRate{PerQuery: 0.005, InputMT: 1, OutputMT: 1}})
	client := &fakePerplexity{answer: claudeAnswer}

	p, err := NewPerplexityProvider(cfg, client, calc, WithClock(clock.Now))
	require.NoError(t, err)

	req := model.ScrapeRequest{URL: "https://example.com/jane", Options: map[string]any{OptionContent: "Jane Doe page"}}
	for i := 0; i < 2; i++ {
		resp := p.Scrape(context.Background(), req)
		require.True(t, resp.Success, "error: %v", resp.Error)
		assert.InDelta(t, 0.0061, resp.Metadata.Cost, 1e-9)
	}
	require.Len(t, client.got.Messages, 2)
	assert.Equal(t, "system", client.got.Messages[0].Role)
	assert.Contains(t, client.got.Messages[1].Content, "Jane Doe page")
	assert.Equal(t, []string{"example.com"}, client.got.SearchDomainFilter)
	require.NotNil(t, client.got.ResponseFormat)
	assert.Equal(t, "json_schema", client.got.ResponseFormat.Type)

	resp := p.Scrape(context.Background(), req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindQuotaExceeded, resp.Error.Kind)

	st := p.Status()
	assert.Equal(t, int64(2), st.Requests)
	assert.Equal(t, int64(1), st.Refused)
	require.NotNil(t, st.Ledger)
	assert.Equal(t, 2200, st.Ledger.DailyTokens)
}
