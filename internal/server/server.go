// Package server exposes comparisons over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/orchestrator"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
)

// EnvironmentHeader selects the deployment environment a request runs in.
const EnvironmentHeader = "X-Codequal-Environment"

const sarifMediaType = "application/sarif+json"

var envPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Runner runs one comparison.
type Runner interface {
	Run(ctx context.Context, req schemas.ComparisonRequest) (*schemas.ComparisonReport, error)
}

// RunnerSource returns the Runner for an environment.
type RunnerSource interface {
	Runner(ctx context.Context, env string) (Runner, error)
}

// Options configures the HTTP handler.
type Options struct {
	DefaultEnvironment string
	APIKey             string
	ServiceName        string
	TracerProvider     trace.TracerProvider
}

type handler struct {
	runners    RunnerSource
	defaultEnv string
	logger     *zap.Logger
}

// NewRouter builds the gin engine serving the comparison API.
func NewRouter(runners RunnerSource, logger *zap.Logger, opts Options) *gin.Engine {
	router := gin.New()

	// Order matters: the span wraps recovery and logging.
	if opts.TracerProvider != nil {
		name := opts.ServiceName
		if name == "" {
			name = "codequal"
		}
		router.Use(otelgin.Middleware(name, otelgin.WithTracerProvider(opts.TracerProvider)))
	}
	router.Use(Recovery(logger), Logger(logger))

	h := &handler{runners: runners, defaultEnv: opts.DefaultEnvironment, logger: logger.Named("http")}
	if h.defaultEnv == "" {
		h.defaultEnv = "default"
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(RequireAPIKey(opts.APIKey))
	{
		v1.POST("/comparisons", h.createComparison)
	}
	return router
}

func (h *handler) createComparison(c *gin.Context) {
	var req schemas.ComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	env := strings.ToLower(strings.TrimSpace(c.GetHeader(EnvironmentHeader)))
	if env == "" {
		env = h.defaultEnv
	}
	if !envPattern.MatchString(env) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid environment name"})
		return
	}

	ctx := c.Request.Context()
	runner, err := h.runners.Runner(ctx, env)
	if err != nil {
		h.logger.Error("Failed to initialize environment", zap.String("environment", env), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "environment unavailable"})
		return
	}

	report, err := runner.Run(ctx, req)
	if err != nil {
		status := statusFor(err)
		h.logger.Warn("Comparison failed", zap.String("environment", env), zap.Int("status", status), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if c.GetHeader("Accept") == sarifMediaType && len(report.Document) > 0 && report.Format == "sarif" {
		c.Data(http.StatusOK, sarifMediaType, report.Document)
		return
	}
	c.JSON(http.StatusOK, report)
}

// statusFor maps comparison errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, resolver.ErrConfigUnresolved):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrAnalysisUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RequireAPIKey rejects requests without the configured key. It is a no-op
// when key is empty.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if got == "" {
			got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if got != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

// Logger logs each request after it completes.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if span := trace.SpanContextFromContext(c.Request.Context()); span.HasTraceID() {
			fields = append(fields, zap.String("trace_id", span.TraceID().String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("Request completed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("Request completed", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}

// Recovery turns handler panics into 500 responses.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic in request handler", zap.Any("panic", r), zap.String("path", c.Request.URL.Path), zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// Serve runs handler on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) error {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
