package llm

import (
	"fmt"
	"strings"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// NewProvider builds the configured chat backend. An unknown provider name is
// a configuration mistake, reported up front rather than at first use.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "":
		return nil, fmt.Errorf("llm provider is required (openai or anthropic)")
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
