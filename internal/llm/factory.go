package llm

import (
	"fmt"
	"strings"

	"doc-chatter/internal/config"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderYandex    = "yandex"
)

// Factory creates LLM clients from the loaded configuration.
type Factory struct {
	cfg *config.Config
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) CreateClient(provider string) (Client, error) {
	c := f.cfg
	switch strings.ToLower(provider) {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropic(c.AnthropicAPIKey, c.AnthropicBaseURL, c.Model, c.MaxOutputTokens), nil
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return NewOpenAI(c.OpenAIAPIKey, c.OpenAIBaseURL, c.Model, c.MaxOutputTokens, c.OpenRouterReferrer, c.OpenRouterTitle), nil
	case ProviderYandex:
		return NewYandex(c.YandexOAuthToken, c.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
