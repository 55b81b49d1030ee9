package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// Router dispatches a generation request to the client registered for the
// provider of a ModelRef.
type Router struct {
	logger  *zap.Logger
	clients map[string]schemas.LLMClient
}

// NewRouter creates a router over the given provider clients.
func NewRouter(logger *zap.Logger, clients map[string]schemas.LLMClient) (*Router, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one LLM client must be provided")
	}
	for provider, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("nil LLM client registered for provider %q", provider)
		}
	}
	return &Router{logger: logger.Named("llm_router"), clients: clients}, nil
}

// Generate sends req to the client for ref.Provider using ref.Model.
func (r *Router) Generate(ctx context.Context, ref schemas.ModelRef, req schemas.GenerationRequest) (string, error) {
	client, ok := r.clients[ref.Provider]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for provider: %s", ref.Provider)
	}
	req.Model = ref.Model
	r.logger.Debug("Routing LLM request", zap.String("provider", ref.Provider), zap.String("model", ref.Model))
	return client.Generate(ctx, req)
}

// Has reports whether a client is registered for provider.
func (r *Router) Has(provider string) bool {
	_, ok := r.clients[provider]
	return ok
}
