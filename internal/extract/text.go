package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/profile-enricher/internal/model"
)

var (
	headingRe = regexp.MustCompile(`(?m)^#{1,2}\s+(.+)$`)
	linkRe    = regexp.MustCompile(`https?://[^\s)\]"'>]+`)
	titleRe   = regexp.MustCompile(`(?mi)^(?:title|position|role):\s*(.+)$`)
	companyRe = regexp.MustCompile(`(?mi)^(?:company|brokerage|agency|firm):\s*(.+)$`)
	locRe     = regexp.MustCompile(`(?mi)^(?:location|city|based in):\s*(.+)$`)
)

// TextExtractor extracts contact fields from markdown or plain text, the
// format returned by reader-style providers.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(content, sourceURL string) (*model.ExtractedRecord, error) {
	rec := &model.ExtractedRecord{SocialLinks: make(map[string]string)}

	for _, m := range headingRe.FindAllStringSubmatch(content, -1) {
		v := strings.Trim(cleanText(m[1]), "*_ ")
		if LooksLikeName(v) {
			rec.Name = v
			rec.Confidence.Name = confHeuristic
			break
		}
	}

	if v := emailRe.FindString(content); v != "" {
		rec.Email = v
		rec.Confidence.Email = confPattern
	}
	if v := phoneRe.FindString(content); v != "" {
		rec.Phone = strings.TrimSpace(v)
		rec.Confidence.Phone = confPattern
	}
	if m := companyRe.FindStringSubmatch(content); m != nil {
		v := cleanText(m[1])
		rec.Company = v
		rec.Confidence.Company = fieldConfidence(LooksLikeCompany(v), confPattern)
	}
	if m := titleRe.FindStringSubmatch(content); m != nil {
		rec.Title = cleanText(m[1])
	}
	if m := locRe.FindStringSubmatch(content); m != nil {
		rec.Location = cleanText(m[1])
	}
	for _, link := range linkRe.FindAllString(content, -1) {
		if p := socialPlatform(link); p != "" {
			if _, seen := rec.SocialLinks[p]; !seen {
				rec.SocialLinks[p] = link
			}
		}
	}

	return finalize(rec, sourceURL), nil
}
