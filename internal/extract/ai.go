package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/model"
)

// AIPrompt instructs a language model to answer in the shape ParseAIRecord reads.
const AIPrompt = `Extract the contact profile of the person this page is about.
Respond with only a JSON object using these keys (omit unknown values):
{"name":"","company":"","phone":"","email":"","description":"","image":"","title":"","location":"",
"specialties":[],"social_links":{"platform":"url"},
"confidence":{"name":0,"phone":0,"email":0,"company":0}}
Confidence values are 0-100 and reflect how certain you are that each field is correct.`

// AISchema is the JSON schema of the answer AIPrompt asks for.
const AISchema = `{"type":"object","properties":{` +
	`"name":{"type":"string"},"company":{"type":"string"},"phone":{"type":"string"},` +
	`"email":{"type":"string"},"description":{"type":"string"},"image":{"type":"string"},` +
	`"title":{"type":"string"},"location":{"type":"string"},` +
	`"specialties":{"type":"array","items":{"type":"string"}},` +
	`"social_links":{"type":"object","additionalProperties":{"type":"string"}},` +
	`"confidence":{"type":"object","properties":{"name":{"type":"number"},"phone":{"type":"number"},` +
	`"email":{"type":"number"},"company":{"type":"number"}}}},"required":["name"]}`

type aiAnswer struct {
	Name        string            `json:"name"`
	Company     string            `json:"company"`
	Phone       string            `json:"phone"`
	Email       string            `json:"email"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
	Title       string            `json:"title"`
	Location    string            `json:"location"`
	Specialties []string          `json:"specialties"`
	SocialLinks map[string]string `json:"social_links"`
	Confidence  struct {
		Name    float64 `json:"name"`
		Phone   float64 `json:"phone"`
		Email   float64 `json:"email"`
		Company float64 `json:"company"`
	} `json:"confidence"`
}

// ParseAIRecord parses a model's JSON answer into a record. Self-reported
// confidence is capped for values that fail validation.
func ParseAIRecord(text, sourceURL string) (*model.ExtractedRecord, error) {
	var ans aiAnswer
	if err := json.Unmarshal([]byte(cleanJSON(text)), &ans); err != nil {
		return nil, eris.Wrap(err, "extract: parse ai answer")
	}

	rec := &model.ExtractedRecord{
		Name:        strings.TrimSpace(ans.Name),
		Company:     strings.TrimSpace(ans.Company),
		Phone:       strings.TrimSpace(ans.Phone),
		Email:       strings.TrimSpace(ans.Email),
		Description: strings.TrimSpace(ans.Description),
		Image:       ans.Image,
		Title:       ans.Title,
		Location:    ans.Location,
		Specialties: ans.Specialties,
		SocialLinks: ans.SocialLinks,
	}
	rec.Confidence.Name = capped(rec.Name != "" && !LooksLikeName(rec.Name), ans.Confidence.Name)
	rec.Confidence.Phone = capped(rec.Phone != "" && !LooksLikePhone(rec.Phone), ans.Confidence.Phone)
	rec.Confidence.Email = capped(rec.Email != "" && !LooksLikeEmail(rec.Email), ans.Confidence.Email)
	rec.Confidence.Company = capped(rec.Company != "" && !LooksLikeCompany(rec.Company), ans.Confidence.Company)

	return finalize(rec, sourceURL), nil
}

func capped(invalid bool, conf float64) float64 {
	if invalid && conf > confWeak {
		return confWeak
	}
	return conf
}

// cleanJSON strips markdown code fences and surrounding prose from a JSON answer.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
