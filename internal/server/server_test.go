package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/orchestrator"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type runnerFunc func(ctx context.Context, req schemas.ComparisonRequest) (*schemas.ComparisonReport, error)

func (f runnerFunc) Run(ctx context.Context, req schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
	return f(ctx, req)
}

// fakeRunners hands out one runner and records the environments asked for.
type fakeRunners struct {
	runner Runner
	err    error
	envs   []string
}

func (f *fakeRunners) Runner(_ context.Context, env string) (Runner, error) {
	f.envs = append(f.envs, env)
	return f.runner, f.err
}

const validBody = `{"user_id":"dev-1","repository":"acme/shop","base_branch":"main","head_branch":"feature/cart"}`

func do(t *testing.T, router http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/comparisons", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateComparison(t *testing.T) {
	var got schemas.ComparisonRequest
	runners := &fakeRunners{runner: runnerFunc(func(_ context.Context, req schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
		got = req
		return &schemas.ComparisonReport{ID: "rep-1", Success: true, ScoreImpact: 5, Document: []byte(`{"version":"2.1.0"}`), Format: "sarif"}, nil
	})}
	router := NewRouter(runners, zaptest.NewLogger(t), Options{DefaultEnvironment: "prod"})

	t.Run("returns the report", func(t *testing.T) {
		w := do(t, router, validBody, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var report map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, "rep-1", report["id"])
		assert.Equal(t, 5.0, report["score_impact"])
		assert.Equal(t, "feature/cart", got.HeadBranch)
		assert.Equal(t, "prod", runners.envs[len(runners.envs)-1], "default environment")
	})

	t.Run("environment header selects the environment", func(t *testing.T) {
		w := do(t, router, validBody, map[string]string{EnvironmentHeader: "Staging"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "staging", runners.envs[len(runners.envs)-1])
	})

	t.Run("sarif documents are served on request", func(t *testing.T) {
		w := do(t, router, validBody, map[string]string{"Accept": sarifMediaType})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, sarifMediaType, w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"version":"2.1.0"}`, w.Body.String())
	})

	t.Run("invalid requests", func(t *testing.T) {
		w := do(t, router, `{"user_id":"dev-1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, validBody, map[string]string{EnvironmentHeader: "../etc"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateComparison_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"config unresolved", fmt.Errorf("failed to resolve analysis config: %w", resolver.ErrConfigUnresolved), http.StatusServiceUnavailable},
		{"analysis unavailable", fmt.Errorf("%w: branch main: both tiers failed", orchestrator.ErrAnalysisUnavailable), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runners := &fakeRunners{runner: runnerFunc(func(context.Context, schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
				return nil, tt.err
			})}
			w := do(t, NewRouter(runners, zaptest.NewLogger(t), Options{}), validBody, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}

	t.Run("environment construction failure", func(t *testing.T) {
		runners := &fakeRunners{err: errors.New("database unreachable")}
		w := do(t, NewRouter(runners, zaptest.NewLogger(t), Options{}), validBody, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), "database unreachable")
	})

	t.Run("panics are recovered", func(t *testing.T) {
		runners := &fakeRunners{runner: runnerFunc(func(context.Context, schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
			panic("nil map")
		})}
		w := do(t, NewRouter(runners, zaptest.NewLogger(t), Options{}), validBody, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRequireAPIKey(t *testing.T) {
	ok := runnerFunc(func(context.Context, schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
		return &schemas.ComparisonReport{ID: "rep-1"}, nil
	})
	router := NewRouter(&fakeRunners{runner: ok}, zaptest.NewLogger(t), Options{APIKey: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, router, validBody, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, router, validBody, map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(t, router, validBody, map[string]string{"X-API-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, router, validBody, map[string]string{"Authorization": "Bearer s3cret"}).Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "health checks are not authenticated")
}

func TestNewRouter_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	router := NewRouter(&fakeRunners{}, zaptest.NewLogger(t), Options{TracerProvider: tp, ServiceName: "codequal-test"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/healthz")
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	router := NewRouter(&fakeRunners{}, zaptest.NewLogger(t), Options{})
	go func() { done <- Serve(ctx, config.ServerConfig{Addr: addr}, router, zaptest.NewLogger(t)) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
