package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/orchestrator"
	"github.com/sells-group/profile-enricher/internal/usage"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeScrape(t *testing.T, rec *httptest.ResponseRecorder) model.ScrapeResponse {
	t.Helper()
	var resp model.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	h := newRouter(testApp(t, testConfig(t)))

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ScrapeSuccessAndCache(t *testing.T) {
	site := profileSite(t)
	h := newRouter(testApp(t, testConfig(t)))

	rec := doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: site.URL + "/jane", Timeout: "5s"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeScrape(t, rec)
	assert.True(t, first.Success)
	assert.Equal(t, "direct", first.Provider)
	assert.Equal(t, "Jane Doe", first.Record.Name)
	assert.Equal(t, "jane@acmerealty.com", first.Record.Email)
	assert.False(t, first.Metadata.CacheHit)

	rec = doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: site.URL + "/jane"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeScrape(t, rec)
	assert.True(t, second.Metadata.CacheHit)
	assert.NotEqual(t, first.Metadata.RequestID, second.Metadata.RequestID)

	rec = doRequest(t, h, http.MethodDelete, "/cache", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":1}`, rec.Body.String())
}

func TestServer_ScrapeStatuses(t *testing.T) {
	site := profileSite(t)
	c := testConfig(t)
	c.Providers[0].Domains = []string{"127.0.0.1"}
	h := newRouter(testApp(t, c))

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "malformed body", body: "{", want: http.StatusBadRequest},
		{name: "bad timeout", body: scrapeBody{URL: site.URL + "/jane", Timeout: "soon"}, want: http.StatusBadRequest},
		{name: "missing url", body: scrapeBody{}, want: http.StatusBadRequest},
		{name: "no applicable provider", body: scrapeBody{URL: "https://elsewhere.example.com/p"}, want: http.StatusUnprocessableEntity},
		{name: "provider failure", body: scrapeBody{URL: site.URL + "/missing"}, want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/scrape", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_ScrapeBudgetExceeded(t *testing.T) {
	site := profileSite(t)
	c := testConfig(t)
	c.Providers[0].CostPerRequest = 0.5
	c.Usage.DailyBudget = 0.3
	h := newRouter(testApp(t, c))

	rec := doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: site.URL + "/jane"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	resp := decodeScrape(t, rec)
	assert.True(t, resp.Metadata.BudgetExceeded)
	assert.Equal(t, model.KindBudgetExceeded, resp.Error.Kind)
}

func TestServer_ScrapeAfterClose(t *testing.T) {
	a := testApp(t, testConfig(t))
	h := newRouter(a)
	require.NoError(t, a.Close())

	rec := doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: "https://example.com/p"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScrapeStatus(t *testing.T) {
	ok := &model.ScrapeResponse{Success: true}
	budget := &model.ScrapeResponse{Metadata: model.Metadata{BudgetExceeded: true}}
	failed := &model.ScrapeResponse{}
	throttled := &model.ScrapeResponse{Error: model.NewScrapeError(model.KindRateLimit, "rate limit reached", nil)}
	quota := &model.ScrapeResponse{Error: model.NewScrapeError(model.KindQuotaExceeded, "daily request quota of 1 reached", nil)}

	assert.Equal(t, http.StatusServiceUnavailable, scrapeStatus(failed, orchestrator.ErrClosed))
	assert.Equal(t, http.StatusUnprocessableEntity, scrapeStatus(failed, orchestrator.ErrNoApplicableProvider))
	assert.Equal(t, http.StatusBadRequest, scrapeStatus(failed, assert.AnError))
	assert.Equal(t, http.StatusOK, scrapeStatus(ok, nil))
	assert.Equal(t, http.StatusPaymentRequired, scrapeStatus(budget, nil))
	assert.Equal(t, http.StatusBadGateway, scrapeStatus(failed, nil))
	assert.Equal(t, http.StatusTooManyRequests, scrapeStatus(throttled, nil))
	assert.Equal(t, http.StatusTooManyRequests, scrapeStatus(quota, nil))
}

func TestServer_StatusAndUsage(t *testing.T) {
	site := profileSite(t)
	a := testApp(t, testConfig(t))
	h := newRouter(a)

	rec := doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: site.URL + "/jane"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status orchestrator.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "direct", status.Providers[0].Name)

	rec = doRequest(t, h, http.MethodGet, "/usage/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "direct")

	for _, path := range []string{"/usage/dashboard", "/usage/forecast", "/usage/alerts"} {
		rec = doRequest(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = doRequest(t, h, http.MethodGet, "/usage/history?provider=direct&outcome=success&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []usage.HistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "direct", history[0].Provider)
	assert.True(t, history[0].Success)

	rec = doRequest(t, h, http.MethodGet, "/usage/history?outcome=failure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history)

	rec = doRequest(t, h, http.MethodGet, "/usage/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "usage-export.json")
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestServer_HistoryBadQuery(t *testing.T) {
	h := newRouter(testApp(t, testConfig(t)))

	for _, path := range []string{"/usage/history?limit=-1", "/usage/history?limit=x", "/usage/history?since=yesterday"} {
		rec := doRequest(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestServer_Reset(t *testing.T) {
	h := newRouter(testApp(t, testConfig(t)))

	rec := doRequest(t, h, http.MethodPost, "/usage/reset?window=daily&window=monthly", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodPost, "/usage/reset?window=fortnight", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ProviderAdmin(t *testing.T) {
	a := testApp(t, testConfig(t))
	h := newRouter(a)

	rec := doRequest(t, h, http.MethodGet, "/providers/?url=https://example.com/p", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "direct")

	rec = doRequest(t, h, http.MethodPut, "/providers/direct/priority", map[string]int{"priority": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9, a.orch.Status().Providers[0].Priority)

	rec = doRequest(t, h, http.MethodPut, "/providers/direct/priority", map[string]int{"priority": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/providers/direct/rate-limit", map[string]int{"rate_limit": 30})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, a.orch.Status().Providers[0].RateLimit)

	rec = doRequest(t, h, http.MethodPut, "/providers/direct/rate-limit", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/providers/direct/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, a.orch.Status().Providers[0].Enabled)

	rec = doRequest(t, h, http.MethodPost, "/providers/direct/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, a.orch.Status().Providers[0].Enabled)

	rec = doRequest(t, h, http.MethodPost, "/providers/ghost/enable", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	site := profileSite(t)
	h := newRouter(testApp(t, testConfig(t)))

	rec := doRequest(t, h, http.MethodPost, "/scrape", scrapeBody{URL: site.URL + "/jane"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enricher_")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_CORS(t *testing.T) {
	h := newRouter(testApp(t, testConfig(t)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
