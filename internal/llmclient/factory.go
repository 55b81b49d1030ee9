package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

// openRouterEndpoint is used when the openrouter provider has no endpoint set.
const openRouterEndpoint = "https://openrouter.ai/api/v1"

// NewClient creates an LLMClient for a single provider.
func NewClient(ctx context.Context, provider config.LLMProvider, cfg config.LLMProviderConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderOpenRouter:
		if cfg.Endpoint == "" {
			cfg.Endpoint = openRouterEndpoint
		}
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s, %s]",
			provider, config.ProviderOpenAI, config.ProviderOpenRouter, config.ProviderAnthropic, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds clients for the providers named by the primary
// and fallback models. A provider whose client cannot be built is skipped
// with a warning as long as at least one client remains.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	clients := make(map[string]schemas.LLMClient)
	var firstErr error
	for _, spec := range []config.ModelSpec{cfg.Primary, cfg.Fallback} {
		if spec.Provider == "" || clients[spec.Provider] != nil {
			continue
		}
		client, err := NewClient(ctx, config.LLMProvider(spec.Provider), cfg.Providers[spec.Provider], logger)
		if err != nil {
			logger.Warn("LLM provider unavailable", zap.String("provider", spec.Provider), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		clients[spec.Provider] = client
	}
	if len(clients) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no LLM models configured")
		}
		return nil, fmt.Errorf("failed to create any LLM client: %w", firstErr)
	}
	return NewRouter(logger, clients)
}
