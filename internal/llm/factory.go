package llm

import (
	"fmt"

	"github.com/parcom/reviewd/internal/config"
)

// NewClient builds the provider client named by the configuration.
func NewClient(cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil

	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil

	case "ollama":
		// Local server, OpenAI-compatible. The key is ignored by Ollama but
		// the SDK requires one.
		return NewOpenAIClient("ollama", cfg.OllamaModel, cfg.OllamaBaseURL), nil

	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER: %s (supported: openai, anthropic, ollama)", cfg.Provider)
	}
}
