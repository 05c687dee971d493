package provider

import (
	"strings"
)

const (
	AdapterDemo             = "demo"
	AdapterOpenAICompatible = "openai-compatible"
)

// Spec describes a known model provider and how to reach it.
type Spec struct {
	ID             string
	Name           string
	APIKeyEnv      string
	DefaultBaseURL string
	Adapter        string
	DefaultModel   string
}

var builtin = map[string]Spec{
	"demo": {
		ID:           "demo",
		Name:         "Demo",
		Adapter:      AdapterDemo,
		DefaultModel: "demo-chat",
	},
	"openai": {
		ID:             "openai",
		Name:           "OpenAI",
		APIKeyEnv:      "OPENAI_API_KEY",
		DefaultBaseURL: "https://api.openai.com/v1",
		Adapter:        AdapterOpenAICompatible,
		DefaultModel:   "gpt-4o",
	},
}

func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Lookup returns the spec for a provider id. Unknown ids resolve to an
// OpenAI-compatible spec so custom gateways keep working.
func Lookup(id string) Spec {
	normalized := NormalizeID(id)
	if spec, ok := builtin[normalized]; ok {
		return spec
	}
	return Spec{
		ID:      normalized,
		Name:    strings.TrimSpace(id),
		Adapter: AdapterOpenAICompatible,
	}
}

func IsBuiltin(id string) bool {
	_, ok := builtin[NormalizeID(id)]
	return ok
}
