package ai

import (
	"regexp"
	"strings"
)

// Provider names used in configuration and wiring.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default models per provider, used when config and request leave the model
// unset.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-5"
)

var modelSpaceRe = regexp.MustCompile(`\s+`)

// Model aliases map loose user/config spellings to the exact backend
// identifier. Keys are lowercase with whitespace collapsed to single dashes.
var modelAliases = map[string]map[string]string{
	ProviderOpenAI: {
		"gpt5":          "gpt-5",
		"gpt-5":         "gpt-5",
		"gpt5-mini":     "gpt-5-mini",
		"gpt-5-mini":    "gpt-5-mini",
		"gpt4o":         "gpt-4o",
		"gpt-4o":        "gpt-4o",
		"gpt4o-mini":    "gpt-4o-mini",
		"gpt-4o-mini":   "gpt-4o-mini",
		"gpt4-turbo":    "gpt-4-turbo",
		"gpt-4-turbo":   "gpt-4-turbo",
		"gpt-3.5-turbo": "gpt-3.5-turbo",
		"gpt3.5":        "gpt-3.5-turbo",
	},
	ProviderAnthropic: {
		"claude-4.5":          "claude-sonnet-4-5",
		"claude-sonnet-4.5":   "claude-sonnet-4-5",
		"claude-sonnet-4-5":   "claude-sonnet-4-5",
		"sonnet":              "claude-sonnet-4-5",
		"claude-opus-4.1":     "claude-opus-4-1",
		"claude-opus-4-1":     "claude-opus-4-1",
		"opus":                "claude-opus-4-1",
		"claude-haiku-4.5":    "claude-haiku-4-5",
		"claude-haiku-4-5":    "claude-haiku-4-5",
		"haiku":               "claude-haiku-4-5",
		"claude-3-5-sonnet":   "claude-3-5-sonnet-latest",
		"claude-3.5-sonnet":   "claude-3-5-sonnet-latest",
	},
}

// NormalizeModel maps a requested model name onto one exact backend
// identifier for the provider. Unknown strings pass through unchanged (bar
// whitespace trimming) so new models are not silently rejected.
func NormalizeModel(provider, requested string) string {
	trimmed := strings.TrimSpace(requested)
	if trimmed == "" {
		switch provider {
		case ProviderAnthropic:
			return DefaultAnthropicModel
		default:
			return DefaultOpenAIModel
		}
	}

	key := strings.ToLower(modelSpaceRe.ReplaceAllString(trimmed, "-"))
	if aliases, ok := modelAliases[provider]; ok {
		if canonical, ok := aliases[key]; ok {
			return canonical
		}
	}
	return trimmed
}
