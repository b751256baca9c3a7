package llm

import (
	"context"
	"fmt"
)

// mockReply is what the mock provider says when no real backend is wired.
const mockReply = "Thanks, your answer has been recorded. (Offline grading mode.)\nSCORE: 1.0"

// NewProvider creates a Provider from configuration, wrapped with retry
// and logging: caller → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model := cfg.ModelOrDefault()

	var base Provider
	var err error

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, model)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.APIKey, model)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.APIKey, model)
	case "mock":
		return NewEchoProvider(mockReply), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base), cfg.Retry), nil
}
