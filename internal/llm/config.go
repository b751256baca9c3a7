package llm

import (
	"fmt"
	"time"
)

// Config holds the LLM settings the commands expose as flags.
type Config struct {
	// Provider selects the backend: "openai", "anthropic", "gemini" or "mock".
	Provider string

	// APIKey authenticates with the provider. Local OpenAI-compatible
	// servers such as Ollama accept any non-empty value.
	APIKey string

	// Model is a provider model ID or one of the friendly names below.
	// Empty selects the provider default.
	Model string

	// BaseURL overrides the OpenAI endpoint for compatible APIs.
	BaseURL string

	Retry RetryConfig
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// defaultModels is the model used per provider when Config.Model is empty.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku",
	"gemini":    "gemini-flash",
	"mock":      "mock",
}

// DefaultRetry returns the retry policy used unless overridden.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Retry:    DefaultRetry(),
	}
}

// ModelOrDefault returns the configured model or the provider default.
func (c Config) ModelOrDefault() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Provider]
}

// Validate checks that the selected provider is known and has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("an API key is required for the openai provider")
		}
	case "anthropic", "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("an API key is required for the %s provider", c.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
