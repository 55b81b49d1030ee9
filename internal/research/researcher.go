// Package research recommends an analysis model for a repository.
package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/llmclient"
	"github.com/xkilldash9x/codequal-cli/internal/llmutil"
)

// Generator is the slice of llmclient.Router the researcher needs.
type Generator interface {
	Generate(ctx context.Context, ref schemas.ModelRef, req schemas.GenerationRequest) (string, error)
}

const systemPrompt = `You select large language models for automated code review.
Reply with a single JSON object: {"provider": string, "model": string, "reasoning": [string]}.
Provider must be one of: openai, openrouter, anthropic, gemini. Do not add prose.`

// LLMResearcher asks a model which model should analyze a repository.
type LLMResearcher struct {
	gen      Generator
	primary  schemas.ModelRef
	fallback schemas.ModelRef
	logger   *zap.Logger
}

// NewLLMResearcher creates a researcher that queries primary and, on
// failure, fallback.
func NewLLMResearcher(gen Generator, primary, fallback schemas.ModelRef, logger *zap.Logger) (*LLMResearcher, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if primary.IsZero() {
		return nil, fmt.Errorf("primary research model must be configured")
	}
	return &LLMResearcher{gen: gen, primary: primary, fallback: fallback, logger: logger.Named("researcher")}, nil
}

// Research implements schemas.ModelResearcher.
func (r *LLMResearcher) Research(ctx context.Context, criteria schemas.ResearchCriteria) (*schemas.ModelRecommendation, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(criteria),
		Temperature:  0.2,
		MaxTokens:    512,
		JSON:         true,
	}

	out := llmclient.CallWithFallback(ctx, r.primary, r.fallback, func(ctx context.Context, m schemas.ModelRef) (*schemas.ModelRecommendation, error) {
		text, err := r.gen.Generate(ctx, m, req)
		if err != nil {
			return nil, err
		}
		rec, err := llmutil.ParseJSONResponse[schemas.ModelRecommendation](text)
		if err != nil {
			return nil, err
		}
		if rec.Model == "" {
			return nil, fmt.Errorf("model %s recommended an empty model name", m)
		}
		rec.Provider = normalizeProvider(rec.Provider, rec.Model)
		return rec, nil
	})

	switch out.Kind {
	case llmclient.Success:
		r.logger.Info("Model research complete", zap.String("recommended", out.Value.Ref().String()))
		return out.Value, nil
	case llmclient.FallbackSuccess:
		r.logger.Warn("Model research used fallback model",
			zap.String("fallback", out.Model.String()), zap.Error(out.PrimaryErr))
		return out.Value, nil
	default:
		return nil, fmt.Errorf("model research failed: %w", out.Err)
	}
}

func buildPrompt(c schemas.ResearchCriteria) string {
	repo := c.Repository
	var b strings.Builder
	b.WriteString("Pick the best model for analyzing pull requests in this repository.\n")
	fmt.Fprintf(&b, "Repository type: %s\n", orUnknown(repo.RepoType))
	fmt.Fprintf(&b, "Primary language: %s\n", orUnknown(repo.Language))
	fmt.Fprintf(&b, "Size: %s\n", orUnknown(string(repo.Size)))
	fmt.Fprintf(&b, "Complexity: %s\n", orUnknown(repo.Complexity))
	fmt.Fprintf(&b, "Business criticality: %s\n", orUnknown(string(repo.Criticality)))
	if len(repo.Frameworks) > 0 {
		fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(repo.Frameworks, ", "))
	}
	if c.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", c.Purpose)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// normalizeProvider fills in a missing provider. OpenRouter ids look like
// vendor/model; bare ids are assumed to be OpenAI models.
func normalizeProvider(provider, model string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" {
		return provider
	}
	if strings.Contains(model, "/") {
		return "openrouter"
	}
	return "openai"
}
