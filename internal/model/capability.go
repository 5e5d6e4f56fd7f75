package model

import "github.com/rotisserie/eris"

// Capability identifies the kind of backend a provider wraps.
type Capability string

const (
	// CapabilityConventional is a fetch-and-parse backend (plain HTTP, reader APIs).
	CapabilityConventional Capability = "conventional"
	// CapabilityAIText is an AI service that extracts from page text.
	CapabilityAIText Capability = "ai_text"
	// CapabilityAIVision is an AI service that extracts from screenshots or images.
	CapabilityAIVision Capability = "ai_vision"
)

// AllCapabilities returns every defined capability.
func AllCapabilities() []Capability {
	return []Capability{CapabilityConventional, CapabilityAIText, CapabilityAIVision}
}

// IsAI reports whether results from this capability are held to the AI confidence bar.
func (c Capability) IsAI() bool {
	return c == CapabilityAIText || c == CapabilityAIVision
}

// ParseCapability converts a config string into a Capability.
func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", eris.Errorf("model: unknown capability %q", s)
}
