package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScrapeRequest asks for a contact profile to be extracted from URL.
type ScrapeRequest struct {
	URL     string         `json:"url"`
	Options map[string]any `json:"options,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty"`
}

// Option returns the string value of a request option, or "" when unset.
func (r ScrapeRequest) Option(key string) string {
	v, ok := r.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Host returns the lower-cased host of the request URL without a leading "www.".
func (r ScrapeRequest) Host() string {
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Fingerprint returns a deterministic cache key for the request. Scheme and host are
// case-folded; options are JSON encoded, which sorts map keys. Options that
// cannot be encoded fall back to their fmt rendering so they still separate
// keys.
func (r ScrapeRequest) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(normalizeURL(r.URL)))
	h.Write([]byte{0})
	if len(r.Options) > 0 {
		b, err := json.Marshal(r.Options)
		if err != nil {
			b = []byte(fmt.Sprint(r.Options))
		}
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

// TokenUsage tracks token consumption and the cost attributed to it.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Total returns input plus output tokens.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// Candidate is a successful result that fell below its confidence threshold.
type Candidate struct {
	Provider   string           `json:"provider"`
	Confidence float64          `json:"confidence"`
	Threshold  float64          `json:"threshold"`
	Record     *ExtractedRecord `json:"record,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID          string            `json:"request_id"`
	Timestamp          time.Time         `json:"timestamp"`
	ProvidersAttempted []string          `json:"providers_attempted"`
	AttemptCount       int               `json:"attempt_count"`
	CacheHit           bool              `json:"cache_hit"`
	Cost               float64           `json:"cost"`
	Tokens             TokenUsage        `json:"tokens"`
	BudgetExceeded     bool              `json:"budget_exceeded,omitempty"`
	Skipped            map[string]string `json:"skipped,omitempty"`
	Candidates         []Candidate       `json:"candidates,omitempty"`
}

// ScrapeResponse is the outcome of a scrape. Record is meaningful when Success is
// true, Error when it is false.
type ScrapeResponse struct {
	Success    bool             `json:"success"`
	Record     *ExtractedRecord `json:"record,omitempty"`
	Confidence float64          `json:"confidence"`
	Provider   string           `json:"provider,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Metadata   Metadata         `json:"metadata"`
	Error      *ScrapeError     `json:"error,omitempty"`
}

// Failed builds a failed response carrying err.
func Failed(provider string, err *ScrapeError) *ScrapeResponse {
	return &ScrapeResponse{
		Provider: provider,
		Error:    err,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	}
}

// Clone returns a copy of the response that shares no mutable state with r.
func (r *ScrapeResponse) Clone() *ScrapeResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Record = r.Record.Clone()
	c.Metadata.ProvidersAttempted = append([]string(nil), r.Metadata.ProvidersAttempted...)
	if r.Metadata.Skipped != nil {
		c.Metadata.Skipped = make(map[string]string, len(r.Metadata.Skipped))
		for k, v := range r.Metadata.Skipped {
			c.Metadata.Skipped[k] = v
		}
	}
	if r.Metadata.Candidates != nil {
		c.Metadata.Candidates = make([]Candidate, len(r.Metadata.Candidates))
		for i, cand := range r.Metadata.Candidates {
			cand.Record = cand.Record.Clone()
			c.Metadata.Candidates[i] = cand
		}
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}
