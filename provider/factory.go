package provider

import (
	"context"
	"fmt"

	"branchchat/config"
	"branchchat/model"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (missing key, invalid URL).
//
// Example:
//
//	p, err := provider.NewProvider(ctx, provider.Config{
//	    Type:   provider.ProviderTypeGemini,
//	    Model:  "gemini-2.5-flash",
//	    APIKey: os.Getenv("GEMINI_API_KEY"),
//	})
func NewProvider(ctx context.Context, cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeGemini:
		return NewGeminiProvider(ctx, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case ProviderTypeOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIProvider(baseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider id to a ProviderType.
// "google" is accepted as an alias of "gemini". Unknown ids are passed through
// and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "gemini", "google":
		return ProviderTypeGemini
	case "openai":
		return ProviderTypeOpenAI
	case "openrouter":
		return ProviderTypeOpenRouter
	case "anthropic":
		return ProviderTypeAnthropic
	case "ollama":
		return ProviderTypeOllama
	default:
		return ProviderType(id)
	}
}

// ForModel is the model.ProviderFactory used by conversations.
func ForModel(ctx context.Context, m config.ModelConfig, apiKey string) (model.Provider, error) {
	config.Debugf("[Provider] Creating %s provider for model %s (%s)", m.Provider, m.ID, m.Model)
	return NewProvider(ctx, Config{
		Type:      MapProviderIDToType(m.Provider),
		BaseURL:   m.BaseURL,
		Model:     m.Model,
		APIKey:    apiKey,
		MaxTokens: m.MaxTokens,
	})
}

var _ model.ProviderFactory = ForModel
