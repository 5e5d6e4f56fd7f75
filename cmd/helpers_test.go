package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-enricher/internal/config"
	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/provider"
)

const profileHTML = `<!doctype html>
<html><head>
<title>Jane Doe | Acme Realty</title>
<meta property="og:site_name" content="Acme Realty">
<meta name="description" content="Top producing agent in Austin.">
</head>
<body itemscope itemtype="https://schema.org/Person">
<h1 itemprop="name">Jane Doe</h1>
<span itemprop="jobTitle">Broker Associate</span>
<div itemprop="worksFor" itemscope><span itemprop="name">Acme Realty LLC</span></div>
<span itemprop="addressLocality">Austin</span><span itemprop="addressRegion">TX</span>
<a href="tel:+1-512-555-0100">Call</a>
<a href="mailto:jane@acmerealty.com">Email</a>
</body></html>`

// profileSite serves profileHTML at /jane and 404 everywhere else.
func profileSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jane" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(profileHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testConfig loads defaults from an empty directory and adds one direct
// HTTP provider.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	c, err := config.Load()
	require.NoError(t, err)
	c.Orchestrator.Retry.BaseDelayMs = 1
	c.Orchestrator.Retry.MaxDelayMs = 1
	c.Providers = []provider.Config{{
		Name:       "direct",
		Kind:       provider.KindHTTP,
		Capability: model.CapabilityConventional,
		Priority:   5,
	}}
	return c
}

func testApp(t *testing.T, c *config.Config) *app {
	t.Helper()
	a, err := newApp(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}
