package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/model"
)

// HTMLExtractor pulls contact fields out of an HTML document using structured
// markup first (schema.org, OpenGraph, tel:/mailto: links) and page headings last.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(content, sourceURL string) (*model.ExtractedRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	rec := &model.ExtractedRecord{SocialLinks: make(map[string]string)}
	meta := metaTags(doc)

	e.name(doc, meta, rec)
	e.company(doc, meta, rec)
	e.contact(doc, rec)

	if v := itemprop(doc, "jobTitle"); v != "" {
		rec.Title = v
	}
	if v := itemprop(doc, "addressLocality"); v != "" {
		rec.Location = v
		if region := itemprop(doc, "addressRegion"); region != "" {
			rec.Location += ", " + region
		}
	}
	if v := firstNonEmpty(itemprop(doc, "description"), meta["og:description"], meta["description"]); v != "" {
		rec.Description = v
	}
	if v := firstNonEmpty(meta["og:image"], attr(doc.Find(`[itemprop="image"]`), "src")); v != "" {
		rec.Image = v
	}
	doc.Find(`[itemprop="knowsAbout"], .specialties li`).Each(func(_ int, s *goquery.Selection) {
		if v := cleanText(s.Text()); v != "" {
			rec.Specialties = append(rec.Specialties, v)
		}
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if p := socialPlatform(href); p != "" {
			if _, seen := rec.SocialLinks[p]; !seen {
				rec.SocialLinks[p] = strings.TrimSpace(href)
			}
		}
	})

	return finalize(rec, sourceURL), nil
}

func (e *HTMLExtractor) name(doc *goquery.Document, meta map[string]string, rec *model.ExtractedRecord) {
	if v := itemprop(doc, "name"); v != "" {
		rec.Name = v
		rec.Confidence.Name = fieldConfidence(LooksLikeName(v), confStructured)
		return
	}
	if v := meta["og:title"]; v != "" && LooksLikeName(v) {
		rec.Name = v
		rec.Confidence.Name = confMeta
		return
	}
	doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v := cleanText(s.Text())
		if LooksLikeName(v) {
			rec.Name = v
			rec.Confidence.Name = confHeuristic
			return false
		}
		return true
	})
}

func (e *HTMLExtractor) company(doc *goquery.Document, meta map[string]string, rec *model.ExtractedRecord) {
	v := firstNonEmpty(
		cleanText(doc.Find(`[itemprop="worksFor"] [itemprop="name"]`).First().Text()),
		itemprop(doc, "worksFor"),
		itemprop(doc, "affiliation"),
	)
	conf := confStructured
	if v == "" {
		v = meta["og:site_name"]
		conf = confHeuristic
	}
	if v != "" {
		rec.Company = v
		rec.Confidence.Company = fieldConfidence(LooksLikeCompany(v), conf)
	}
}

func (e *HTMLExtractor) contact(doc *goquery.Document, rec *model.ExtractedRecord) {
	if href := attr(doc.Find(`a[href^="mailto:"]`), "href"); href != "" {
		v := strings.SplitN(strings.TrimPrefix(href, "mailto:"), "?", 2)[0]
		rec.Email = v
		rec.Confidence.Email = fieldConfidence(LooksLikeEmail(v), confStructured)
	} else if v := itemprop(doc, "email"); v != "" {
		rec.Email = v
		rec.Confidence.Email = fieldConfidence(LooksLikeEmail(v), confStructured)
	} else if v := emailRe.FindString(doc.Find("body").Text()); v != "" {
		rec.Email = v
		rec.Confidence.Email = confPattern
	}

	if href := attr(doc.Find(`a[href^="tel:"]`), "href"); href != "" {
		v := strings.TrimPrefix(href, "tel:")
		rec.Phone = v
		rec.Confidence.Phone = fieldConfidence(LooksLikePhone(v), confStructured)
	} else if v := itemprop(doc, "telephone"); v != "" {
		rec.Phone = v
		rec.Confidence.Phone = fieldConfidence(LooksLikePhone(v), confStructured)
	} else if v := phoneRe.FindString(doc.Find("body").Text()); v != "" {
		rec.Phone = v
		rec.Confidence.Phone = confPattern
	}
}

func metaTags(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		key := name
		if property != "" {
			key = property
		}
		if key != "" && content != "" {
			tags[strings.ToLower(key)] = strings.TrimSpace(content)
		}
	})
	return tags
}

func itemprop(doc *goquery.Document, prop string) string {
	s := doc.Find(`[itemprop="` + prop + `"]`).First()
	if s.Length() == 0 {
		return ""
	}
	if v, ok := s.Attr("content"); ok && v != "" {
		return strings.TrimSpace(v)
	}
	return cleanText(s.Text())
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.First().Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
