package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"finsight/internal/logging"
)

// Provider identifies a completion backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// DetectProvider resolves a provider from environment variables.
// Priority: OPENAI_API_KEY > GEMINI_API_KEY.
func DetectProvider() (*ProviderConfig, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{Provider: p.provider, APIKey: key}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; set one of: OPENAI_API_KEY, GEMINI_API_KEY")
}

// NewClientFromConfig creates a completion client from a provider config.
func NewClientFromConfig(ctx context.Context, cfg *ProviderConfig) (CompletionClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		oc := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		logging.API("openai client ready: model=%s base=%s", oc.Model, oc.BaseURL)
		return NewOpenAIClientWithConfig(oc), nil

	case ProviderGemini:
		logging.API("gemini client ready: model=%s", cfg.Model)
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
