// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds every tunable of the service. Values come from environment
// variables; cmd/reviewd loads a .env file first if one is present.
type Config struct {
	Port int `env:"PORT" envDefault:"8787"`

	// LLM settings
	Provider        string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	OllamaModel     string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
	OllamaBaseURL   string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434/v1"`
	MaxTokens       int    `env:"REVIEWD_MAX_TOKENS" envDefault:"4096"`

	// Storage
	DBPath     string `env:"REVIEWD_DB_PATH" envDefault:"data/reviewd.db"`
	SearchPath string `env:"REVIEWD_SEARCH_PATH" envDefault:"data/reviews.bleve"`

	// Prompt template overrides, one <category>.txt per file. Empty
	// disables overrides.
	PromptDir string `env:"REVIEWD_PROMPT_DIR"`

	// Cache
	CacheTTL time.Duration `env:"REVIEWD_CACHE_TTL" envDefault:"1h"`

	// Rate limiting
	RateLimitMax    int           `env:"REVIEWD_RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow time.Duration `env:"REVIEWD_RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
