package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/elicit/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewClient creates an embedding client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(cfg Config) (domain.EmbeddingClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions), nil

	case ProviderMock:
		m := NewMockClient()
		if cfg.Dimensions > 0 {
			m.Dimensions = cfg.Dimensions
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", cfg.Provider)
	}
}
