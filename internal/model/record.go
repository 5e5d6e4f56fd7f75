package model

import "maps"

// FieldConfidence holds 0-100 confidence scores for individual fields.
type FieldConfidence struct {
	Name    float64 `json:"name"`
	Phone   float64 `json:"phone"`
	Email   float64 `json:"email"`
	Company float64 `json:"company"`
	Overall float64 `json:"overall"`
}

// ExtractedRecord is the structured contact profile produced by a provider.
type ExtractedRecord struct {
	Name        string            `json:"name,omitempty"`
	Company     string            `json:"company,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	SourceURL   string            `json:"source_url"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
	Title       string            `json:"title,omitempty"`
	Location    string            `json:"location,omitempty"`
	Specialties []string          `json:"specialties,omitempty"`
	Confidence  FieldConfidence   `json:"confidence"`
}

// Field weights used by ScoreRecord.
const (
	WeightName        = 0.30
	WeightPhone       = 0.25
	WeightEmail       = 0.20
	WeightCompany     = 0.15
	WeightDescription = 0.10

	// DescriptionConfidence is the confidence assigned to a populated description,
	// which has no per-field score of its own.
	DescriptionConfidence = 70.0

	BonusImage       = 3.0
	BonusTitle       = 3.0
	BonusLocation    = 3.0
	BonusSpecialties = 2.0
	BonusSocial      = 2.0
)

// ScoreRecord computes the overall confidence of a record: the weighted average of
// the populated primary fields plus small bonuses for secondary signals, capped at 100.
// It returns 0 when no primary field is populated.
func ScoreRecord(r *ExtractedRecord) float64 {
	if r == nil {
		return 0
	}

	var sum, weight float64
	add := func(populated bool, w, conf float64) {
		if !populated {
			return
		}
		sum += w * clamp(conf)
		weight += w
	}
	add(r.Name != "", WeightName, r.Confidence.Name)
	add(r.Phone != "", WeightPhone, r.Confidence.Phone)
	add(r.Email != "", WeightEmail, r.Confidence.Email)
	add(r.Company != "", WeightCompany, r.Confidence.Company)
	add(r.Description != "", WeightDescription, DescriptionConfidence)

	if weight == 0 {
		return 0
	}
	score := sum / weight

	if r.Image != "" {
		score += BonusImage
	}
	if r.Title != "" {
		score += BonusTitle
	}
	if r.Location != "" {
		score += BonusLocation
	}
	if len(r.Specialties) > 0 {
		score += BonusSpecialties
	}
	if len(r.SocialLinks) > 0 {
		score += BonusSocial
	}
	return clamp(score)
}

// Clone returns a deep copy of the record.
func (r *ExtractedRecord) Clone() *ExtractedRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.SocialLinks != nil {
		c.SocialLinks = maps.Clone(r.SocialLinks)
	}
	if r.Specialties != nil {
		c.Specialties = append([]string(nil), r.Specialties...)
	}
	return &c
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
