package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/model"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", in: nil, want: nil},
		{name: "pairs", in: []string{"lang=en", " depth = 2 "}, want: map[string]any{"lang": "en", "depth": "2"}},
		{name: "empty value", in: []string{"flag="}, want: map[string]any{"flag": ""}},
		{name: "value with equals", in: []string{"q=a=b"}, want: map[string]any{"q": "a=b"}},
		{name: "missing equals", in: []string{"lang"}, wantErr: true},
		{name: "empty key", in: []string{"=en"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScrapeCommand_PrintsResponse(t *testing.T) {
	site := profileSite(t)
	cfg = testConfig(t)
	t.Cleanup(func() {
		cfg = nil
		scrapeURL = ""
		scrapeOptions = nil
	})
	scrapeURL = site.URL + "/jane"
	scrapeOptions = []string{"lang=en"}

	var out bytes.Buffer
	scrapeCmd.SetOut(&out)
	t.Cleanup(func() { scrapeCmd.SetOut(nil) })

	scrapeCmd.SetContext(t.Context())
	require.NoError(t, scrapeCmd.RunE(scrapeCmd, nil))

	var resp model.ScrapeResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "direct", resp.Provider)
	assert.Equal(t, "Jane Doe", resp.Record.Name)
	assert.Equal(t, []string{"direct"}, resp.Metadata.ProvidersAttempted)
}

func TestScrapeCommand_FailureReturnsError(t *testing.T) {
	site := profileSite(t)
	cfg = testConfig(t)
	t.Cleanup(func() {
		cfg = nil
		scrapeURL = ""
	})
	scrapeURL = site.URL + "/missing"

	var out bytes.Buffer
	scrapeCmd.SetOut(&out)
	t.Cleanup(func() { scrapeCmd.SetOut(nil) })

	scrapeCmd.SetContext(t.Context())
	err := scrapeCmd.RunE(scrapeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")

	var resp model.ScrapeResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, model.KindValidation, resp.Error.Kind)
}
