package provider

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/extract"
	"github.com/sells-group/profile-enricher/internal/model"
)

const maxPageBytes = 1 << 20

// HTTPProvider fetches profile pages directly and parses their HTML.
type HTTPProvider struct {
	*Base
	pages     *PageFetcher
	extractor extract.Extractor
}

// PageFetcher downloads raw pages politely: one adaptive limiter per host,
// a capped body and anti-bot challenge detection.
type PageFetcher struct {
	client    *http.Client
	hosts     *HostLimiter
	userAgent string
}

// DefaultUserAgent is sent when no user_agent credential is configured.
const DefaultUserAgent = "Mozilla/5.0 (compatible; ProfileEnricher/1.0)"

// NewPageFetcher creates a PageFetcher. Nil arguments get defaults.
func NewPageFetcher(client *http.Client, hosts *HostLimiter, userAgent string) *PageFetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if hosts == nil {
		hosts = NewHostLimiter(2, 2)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &PageFetcher{client: client, hosts: hosts, userAgent: userAgent}
}

// DefaultHTTPClient returns the client used for direct page fetches.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewHTTPProvider creates a conventional provider. A nil client or host
// limiter gets a default.
func NewHTTPProvider(cfg Config, client *http.Client, hosts *HostLimiter, opts ...BaseOption) (*HTTPProvider, error) {
	base, err := NewBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &HTTPProvider{
		Base:      base,
		pages:     NewPageFetcher(client, hosts, cfg.Credential("user_agent")),
		extractor: extract.NewHTMLExtractor(),
	}, nil
}

// Scrape implements Provider.
func (p *HTTPProvider) Scrape(ctx context.Context, req model.ScrapeRequest) *model.ScrapeResponse {
	return p.Run(ctx, req, p.fetch)
}

func (p *HTTPProvider) fetch(ctx context.Context, req model.ScrapeRequest) (*Outcome, error) {
	body, err := p.pages.Fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	rec, err := p.extractor.Extract(body, req.URL)
	if err != nil {
		return nil, model.NewScrapeError(model.KindExtraction, "parse page", err)
	}
	return &Outcome{Record: rec}, nil
}

// FetchPage returns the raw HTML of a page. AI providers use it as their page source.
func (p *HTTPProvider) FetchPage(ctx context.Context, targetURL string) (string, error) {
	return p.pages.Fetch(ctx, targetURL)
}

// Fetch downloads a page, honoring the per-host limiter and rejecting
// anti-bot challenge pages.
func (p *PageFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	lim, err := p.hosts.Wait(ctx, targetURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", model.NewScrapeError(model.KindValidation, "invalid url", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", model.NewScrapeError(model.KindValidation, "create request", err)
	}
	httpReq.Header.Set("User-Agent", p.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", eris.Wrap(err, "http: read body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if block := DetectBlock(resp, body); block != BlockNone {
		return "", model.NewScrapeError(model.KindProvider, "blocked ("+string(block)+")", nil).WithStatus(resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{StatusCode: resp.StatusCode, URL: targetURL}
	}
	lim.OnSuccess()
	return string(body), nil
}
