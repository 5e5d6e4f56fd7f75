// Package extract turns fetched page content into contact records with
// per-field confidence.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/profile-enricher/internal/model"
)

// Extractor converts raw page content into a record.
type Extractor interface {
	Extract(content, sourceURL string) (*model.ExtractedRecord, error)
}

// Confidence assigned by source strength.
const (
	confStructured = 92.0 // schema.org itemprop, tel:/mailto: links
	confMeta       = 85.0 // OpenGraph and named meta tags
	confPattern    = 80.0 // regex match in free text
	confHeuristic  = 70.0 // headings, title tags
	confWeak       = 50.0 // value found but fails validation
)

var (
	emailRe = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)

	companySuffixes = []string{
		"inc", "inc.", "llc", "ltd", "ltd.", "corp", "corp.", "co.", "group", "realty",
		"properties", "partners", "associates", "company", "agency", "brokerage", "holdings",
	}
	nameStopWords = map[string]bool{
		"home": true, "about": true, "contact": true, "profile": true, "login": true,
		"welcome": true, "page": true, "search": true, "results": true,
	}

	socialHosts = map[string]string{
		"linkedin.com":  "linkedin",
		"facebook.com":  "facebook",
		"twitter.com":   "twitter",
		"x.com":         "twitter",
		"instagram.com": "instagram",
		"youtube.com":   "youtube",
		"tiktok.com":    "tiktok",
	}
)

// LooksLikeEmail reports whether s is a plausible email address.
func LooksLikeEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && emailRe.FindString(s) == s
}

// LooksLikePhone reports whether s holds 10 or 11 digits with only phone punctuation.
func LooksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case strings.ContainsRune(" +-.()", r):
		default:
			return false
		}
	}
	return digits == 10 || (digits == 11 && strings.TrimLeft(s, " +(")[0] == '1')
}

// LooksLikeName reports whether s is a plausible person name: two to five
// capitalized words of letters, no digits, no navigation words.
func LooksLikeName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || len(s) > 60 {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 5 {
		return false
	}
	for _, w := range words {
		if nameStopWords[strings.ToLower(w)] {
			return false
		}
		first := []rune(w)[0]
		if !unicode.IsUpper(first) {
			return false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '.' && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}

// LooksLikeCompany reports whether s is a plausible company name.
func LooksLikeCompany(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 100 || LooksLikeEmail(s) || strings.Contains(s, "://") {
		return false
	}
	lower := strings.ToLower(s)
	for _, suf := range companySuffixes {
		if strings.HasSuffix(lower, " "+suf) || lower == suf {
			return true
		}
	}
	// Multi-word capitalized phrases are accepted without a suffix.
	words := strings.Fields(s)
	return len(words) >= 1 && len(words) <= 8 && unicode.IsUpper([]rune(words[0])[0])
}

// socialPlatform returns the platform key for a profile URL, or "".
func socialPlatform(href string) string {
	lower := strings.ToLower(href)
	for host, platform := range socialHosts {
		if strings.Contains(lower, "://"+host) || strings.Contains(lower, "://www."+host) {
			return platform
		}
	}
	return ""
}

// fieldConfidence returns conf when valid holds, confWeak otherwise.
func fieldConfidence(valid bool, conf float64) float64 {
	if valid {
		return conf
	}
	return confWeak
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// finalize scores the record and stamps the source URL.
func finalize(rec *model.ExtractedRecord, sourceURL string) *model.ExtractedRecord {
	rec.SourceURL = sourceURL
	if len(rec.SocialLinks) == 0 {
		rec.SocialLinks = nil
	}
	rec.Confidence.Overall = model.ScoreRecord(rec)
	return rec
}
