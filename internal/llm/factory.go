package llm

import (
	"fmt"

	"mnemo/internal/session"
)

// Factory builds provider clients from per-provider configuration.
type Factory struct {
	configs map[session.ProviderID]Config
}

// NewFactory creates a factory for the given provider configurations.
func NewFactory(configs map[session.ProviderID]Config) *Factory {
	return &Factory{configs: configs}
}

// NewClient constructs a fresh client for the given provider. Callers
// own the returned client and must Close it.
func (f *Factory) NewClient(provider session.ProviderID) (Client, error) {
	config, ok := f.configs[provider]
	if !ok {
		return nil, fmt.Errorf("no configuration for provider %q", provider)
	}
	switch provider {
	case session.ProviderGemini:
		return NewGeminiClient(config)
	case session.ProviderOpenAI:
		return NewOpenAIClient(config)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
