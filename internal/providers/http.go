// Package providers implements analysis providers: the remote analysis
// service and a fixture-backed provider for offline runs.
package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	analyzePath        = "/v1/analyze"
	defaultHTTPTimeout = 5 * time.Minute
	defaultMaxRetries  = 3
	maxErrorBody       = 4 << 10
)

type analyzeRequest struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	PRNumber   int    `json:"pr_number,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

// wireIssue accepts both a nested location and flat file/line fields.
type wireIssue struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Description  string            `json:"description"`
	Severity     string            `json:"severity"`
	Category     string            `json:"category"`
	Location     *schemas.Location `json:"location"`
	File         string            `json:"file"`
	Line         int               `json:"line"`
	Column       int               `json:"column"`
	SuggestedFix string            `json:"suggested_fix"`
	CodeSnippet  string            `json:"code_snippet"`
	Age          string            `json:"age"`
}

type analyzeResponse struct {
	Issues   []wireIssue        `json:"issues"`
	Scores   map[string]float64 `json:"scores"`
	Metadata map[string]any     `json:"metadata"`
	Model    string             `json:"model"`
}

// HTTPProvider calls a remote analysis service.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewHTTPProvider creates a provider for cfg.Endpoint. client defaults to one
// bounded by cfg.Timeout.
func NewHTTPProvider(cfg config.ProviderConfig, client *http.Client, logger *zap.Logger) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("provider endpoint is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	return &HTTPProvider{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		client:     client,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: retries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger.Named("provider"),
	}, nil
}

// statusError is a non-2xx response from the analysis service.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.status, e.body)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (p *HTTPProvider) Analyze(ctx context.Context, req schemas.AnalyzeRequest) (*schemas.AnalysisResult, error) {
	payload, err := json.Marshal(analyzeRequest{
		Repository: req.Repository,
		Branch:     req.Branch,
		PRNumber:   req.PRNumber,
		Provider:   req.Model.Provider,
		Model:      req.Model.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyze request: %w", err)
	}

	var resp analyzeResponse
	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	err = backoff.RetryNotify(func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := p.post(ctx, payload, &resp)
		var se *statusError
		if errors.As(err, &se) && !retryable(se.status) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.logger.Warn("Analysis request failed, retrying...",
			zap.String("branch", req.Branch), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s@%s: %w", req.Repository, req.Branch, err)
	}

	result := &schemas.AnalysisResult{
		Issues:   make([]schemas.Issue, 0, len(resp.Issues)),
		Scores:   resp.Scores,
		Metadata: resp.Metadata,
		Model:    resp.Model,
	}
	for _, wi := range resp.Issues {
		result.Issues = append(result.Issues, wi.issue())
	}
	if result.Model == "" {
		result.Model = req.Model.Model
	}
	p.logger.Debug("Branch analyzed", zap.String("branch", req.Branch), zap.Int("issues", len(result.Issues)))
	return result, nil
}

func (p *HTTPProvider) post(ctx context.Context, payload []byte, out *analyzeResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+analyzePath, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	*out = analyzeResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode analysis response: %w", err))
	}
	return nil
}

func (w wireIssue) issue() schemas.Issue {
	issue := schemas.Issue{
		ID:           w.ID,
		Title:        w.Title,
		Message:      w.Message,
		Severity:     schemas.NormalizeSeverity(w.Severity),
		Category:     schemas.NormalizeCategory(w.Category),
		Location:     w.Location,
		SuggestedFix: w.SuggestedFix,
		CodeSnippet:  w.CodeSnippet,
		Age:          w.Age,
	}
	if issue.Message == "" {
		issue.Message = w.Description
	}
	if issue.Location == nil && w.File != "" {
		issue.Location = &schemas.Location{File: w.File, Line: w.Line, Column: w.Column}
	}
	return issue
}
