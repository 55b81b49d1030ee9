package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

const defaultMaxTokens = 2048

// retryPolicy bounds how long a single Generate call may keep retrying.
var retryPolicy = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute
	return b
}

// retryable reports whether an API status code is worth retrying.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// classify marks non-retryable SDK errors as permanent so backoff stops.
func classify(err error) error {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) && !retryable(oaiErr.StatusCode) {
		return backoff.Permanent(err)
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) && !retryable(antErr.StatusCode) {
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func withRetry(ctx context.Context, logger *zap.Logger, model string, op func() (string, error)) (string, error) {
	var out string
	start := time.Now()
	err := backoff.RetryNotify(func() error {
		text, err := op()
		if err != nil {
			return classify(err)
		}
		out = text
		return nil
	}, backoff.WithContext(retryPolicy(), ctx), func(err error, wait time.Duration) {
		logger.Warn("LLM request failed, retrying...", zap.String("model", model), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return "", err
	}
	logger.Debug("LLM generation complete", zap.String("model", model), zap.Duration("duration", time.Since(start)))
	return out, nil
}

// -- OpenAI-compatible (OpenAI, OpenRouter) --

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client openai.Client
	cfg    config.LLMProviderConfig
	logger *zap.Logger
}

// NewOpenAIClient creates a client for OpenAI or, with an endpoint set, any
// compatible gateway such as OpenRouter.
func NewOpenAIClient(cfg config.LLMProviderConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the OpenAI-compatible client")
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(cfg.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, openaioption.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, openaioption.WithRequestTimeout(cfg.APITimeout))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends a single system+user prompt and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens(req, c.cfg))),
	}
	if t := temperature(req, c.cfg); t > 0 {
		params.Temperature = openai.Float(t)
	}

	return withRetry(ctx, c.logger, req.Model, func() (string, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("model %s returned no choices", req.Model))
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// -- Anthropic --

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	cfg    config.LLMProviderConfig
	logger *zap.Logger
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(cfg config.LLMProviderConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the Anthropic client")
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, anthropicoption.WithRequestTimeout(cfg.APITimeout))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends a single message and concatenates the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req, c.cfg)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if t := temperature(req, c.cfg); t > 0 {
		params.Temperature = anthropic.Float(t)
	}

	return withRetry(ctx, c.logger, req.Model, func() (string, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("messages request failed: %w", err)
		}
		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", backoff.Permanent(fmt.Errorf("model %s returned no text content", req.Model))
		}
		return sb.String(), nil
	})
}

// -- Gemini --

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    config.LLMProviderConfig
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg config.LLMProviderConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg, logger: logger.Named("llm_client.gemini")}, nil
}

// Generate sends a single prompt and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req, c.cfg)),
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if t := temperature(req, c.cfg); t > 0 {
		gc.Temperature = genai.Ptr(float32(t))
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	return withRetry(ctx, c.logger, req.Model, func() (string, error) {
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), gc)
		if err != nil {
			return "", fmt.Errorf("generate content failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			return "", backoff.Permanent(fmt.Errorf("model %s returned empty content", req.Model))
		}
		return text, nil
	})
}

func maxTokens(req schemas.GenerationRequest, cfg config.LLMProviderConfig) int {
	switch {
	case req.MaxTokens > 0:
		return req.MaxTokens
	case cfg.MaxTokens > 0:
		return cfg.MaxTokens
	default:
		return defaultMaxTokens
	}
}

func temperature(req schemas.GenerationRequest, cfg config.LLMProviderConfig) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return cfg.Temperature
}
