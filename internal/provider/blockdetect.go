package provider

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected on a fetched page.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockDenied     BlockType = "access_denied"
)

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}
	return DetectBlockedContent(string(body))
}

// DetectBlockedContent inspects page text alone. Reader APIs return the
// challenge page as content, so they share this check.
func DetectBlockedContent(content string) BlockType {
	lower := strings.ToLower(content)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "just a moment...") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	// Short pages only; long profiles may mention these phrases in passing.
	if len(content) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") ||
			strings.Contains(lower, `meta http-equiv="refresh"`) ||
			strings.Contains(lower, "enable javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, "access denied") || strings.Contains(lower, "403 forbidden") {
			return BlockDenied
		}
	}

	return BlockNone
}
