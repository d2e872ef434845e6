// Package provider implements model.Provider for each supported LLM family.
//
// Every adapter does two things: BuildRequest translates a projected thread
// into the provider's wire shape, and Stream normalizes the provider's
// streamed response into model.StreamChunk values.
//
// # Tool calls
//
// Adapters never emit tool-call deltas. Whenever a response carries tool-call
// information, the chunk holds the complete set of calls accumulated so far in
// the turn, so the caller can replace its view instead of merging.
//
// # Families
//
//   - gemini: Google generative API through google.golang.org/genai
//   - openai, openrouter: any OpenAI-compatible chat completions endpoint
//   - anthropic: Anthropic Messages API
//   - ollama: a local Ollama server
//
// Use ForModel (a model.ProviderFactory) to create a provider from a model
// entry of the user config.
package provider

// Note: The Provider interface and StreamChunk are defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeGemini     ProviderType = "gemini"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeAnthropic  ProviderType = "anthropic"
	ProviderTypeOllama     ProviderType = "ollama"
)

// Config holds provider-specific configuration.
type Config struct {
	Type      ProviderType
	BaseURL   string
	Model     string
	APIKey    string // unused for Ollama
	MaxTokens int
}
